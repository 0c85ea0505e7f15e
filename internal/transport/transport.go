// Package transport provides the serial and TCP byte channels a radio
// configuration session runs over.
package transport

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"lora-config-service/internal/model"
	"lora-config-service/pkg/lora"
)

// SerialConfig holds serial transport configuration
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	// Timeout bounds the wait for the first response byte. The inter-byte
	// timeout that ends a frame is fixed; see serial.go.
	Timeout time.Duration
}

// TCPConfig holds TCP transport configuration
type TCPConfig struct {
	Host         string
	Port         int
	KeepAlive    bool
	Timeout      time.Duration // dial timeout
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Stats provides transport-level statistics
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}

// StatsProvider is implemented by transports that track traffic statistics.
// Drivers report the counters when a session ends.
type StatsProvider interface {
	GetStats() Stats
}

// Create builds a transport from a module's connection type and its free-form
// connection configuration.
func Create(connectionType model.ConnectionType, config map[string]interface{}, logger *zap.Logger) (lora.Transport, error) {
	switch connectionType {
	case model.ConnectionTypeSerial, model.ConnectionTypeUSB:
		// USB modules surface as USB-UART bridges, so they share the serial
		// transport; the distinction only matters for discovery.
		return createSerial(config, logger)
	case model.ConnectionTypeTCP:
		return createTCP(config, logger)
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

func createSerial(config map[string]interface{}, logger *zap.Logger) (lora.Transport, error) {
	serialConfig := &SerialConfig{
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  time.Second,
	}

	if port, ok := config["port"].(string); ok {
		serialConfig.Port = port
	} else {
		return nil, fmt.Errorf("serial port is required")
	}
	if baudRate, ok := config["baud_rate"]; ok {
		serialConfig.BaudRate = toInt(baudRate, serialConfig.BaudRate)
	}
	if dataBits, ok := config["data_bits"]; ok {
		serialConfig.DataBits = toInt(dataBits, serialConfig.DataBits)
	}
	if stopBits, ok := config["stop_bits"]; ok {
		serialConfig.StopBits = toInt(stopBits, serialConfig.StopBits)
	}
	if parity, ok := config["parity"].(string); ok {
		serialConfig.Parity = parity
	}
	if timeout, ok := config["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeout); err == nil {
			serialConfig.Timeout = dur
		}
	}

	return NewSerial(serialConfig, logger), nil
}

func createTCP(config map[string]interface{}, logger *zap.Logger) (lora.Transport, error) {
	tcpConfig := &TCPConfig{
		Port:         8886, // factory default of the DTU gateways
		KeepAlive:    true,
		Timeout:      5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	if host, ok := config["host"].(string); ok {
		tcpConfig.Host = host
	} else {
		return nil, fmt.Errorf("TCP host is required")
	}
	if port, ok := config["port"]; ok {
		tcpConfig.Port = toInt(port, tcpConfig.Port)
	}
	if keepAlive, ok := config["keep_alive"].(bool); ok {
		tcpConfig.KeepAlive = keepAlive
	}
	if timeout, ok := config["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeout); err == nil {
			tcpConfig.Timeout = dur
		}
	}
	if readTimeout, ok := config["read_timeout"].(string); ok {
		if dur, err := time.ParseDuration(readTimeout); err == nil {
			tcpConfig.ReadTimeout = dur
		}
	}
	if writeTimeout, ok := config["write_timeout"].(string); ok {
		if dur, err := time.ParseDuration(writeTimeout); err == nil {
			tcpConfig.WriteTimeout = dur
		}
	}

	return NewTCP(tcpConfig, logger), nil
}

// ValidateConfig validates connection configuration for a connection type
// before it is persisted.
func ValidateConfig(connectionType model.ConnectionType, config map[string]interface{}) error {
	switch connectionType {
	case model.ConnectionTypeSerial, model.ConnectionTypeUSB:
		return validateSerialConfig(config)
	case model.ConnectionTypeTCP:
		return validateTCPConfig(config)
	default:
		return fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

func validateSerialConfig(config map[string]interface{}) error {
	if _, ok := config["port"].(string); !ok {
		return fmt.Errorf("serial port is required")
	}

	if baudRate, ok := config["baud_rate"]; ok {
		rate := toInt(baudRate, 0)
		validRates := []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}
		valid := false
		for _, validRate := range validRates {
			if rate == validRate {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
	}
	return nil
}

func validateTCPConfig(config map[string]interface{}) error {
	if _, ok := config["host"].(string); !ok {
		return fmt.Errorf("TCP host is required")
	}
	if port, ok := config["port"]; ok {
		portNum := toInt(port, 0)
		if portNum < 1 || portNum > 65535 {
			return fmt.Errorf("invalid port number: %d", portNum)
		}
	}
	return nil
}

// toInt handles the numeric types JSON decoding produces.
func toInt(v interface{}, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
