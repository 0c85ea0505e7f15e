// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"lora-config-service/internal/discovery"
	"lora-config-service/internal/model"
	"lora-config-service/internal/transport"
	"lora-config-service/pkg/lora/frame"
)

// Scanner probes local serial ports for modules in configuration mode
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for the serial scanner
type Config struct {
	ProbeTimeout time.Duration `json:"probe_timeout"`
	PortPatterns []string      `json:"port_patterns"`
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{
			ProbeTimeout: 500 * time.Millisecond,
			PortPatterns: defaultPortPatterns(),
		}
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		config: config,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string { return "serial" }

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool { return true }

// Scan enumerates serial ports and probes each with a configuration read.
// A port answering with a valid response header holds a module in
// configuration mode; a port echoing the request holds one in pass-through
// mode and is reported with lower confidence.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredModule, error) {
	s.logger.Info("Starting serial port scan")

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	filtered := s.filterPorts(ports)
	s.logger.Info("Scanning serial ports", zap.Strings("ports", filtered))

	var found []*discovery.DiscoveredModule
	for _, port := range filtered {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}
		if module := s.probePort(ctx, port); module != nil {
			found = append(found, module)
		}
	}

	s.logger.Info("Serial scan completed", zap.Int("modules_found", len(found)))
	return found, nil
}

func (s *Scanner) probePort(ctx context.Context, port string) *discovery.DiscoveredModule {
	tr := transport.NewSerial(&transport.SerialConfig{
		Port:     port,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  s.config.ProbeTimeout,
	}, s.logger)

	if err := tr.Open(ctx); err != nil {
		s.logger.Debug("Port busy or unusable", zap.String("port", port), zap.Error(err))
		return nil
	}
	defer tr.Close()

	req := frame.EncodeRead(frame.ConfigAddress, frame.ConfigLength)
	if err := tr.Write(ctx, req); err != nil {
		return nil
	}
	raw, err := tr.Read(ctx, 32)
	if err != nil || len(raw) == 0 {
		return nil
	}

	info := map[string]interface{}{
		"port":      port,
		"baud_rate": 9600,
	}
	if len(raw) >= 3 && raw[0] == frame.OpRead {
		return &discovery.DiscoveredModule{
			ConnectionType: model.ConnectionTypeSerial,
			ConnectionInfo: info,
			Confidence:     0.9,
			Location:       port,
		}
	}
	// Anything else talking on the port, including an echo, is only a hint.
	return &discovery.DiscoveredModule{
		ConnectionType: model.ConnectionTypeSerial,
		ConnectionInfo: info,
		Confidence:     0.3,
		Location:       port,
	}
}

func (s *Scanner) filterPorts(ports []string) []string {
	if len(s.config.PortPatterns) == 0 {
		return ports
	}
	var filtered []string
	for _, port := range ports {
		for _, pattern := range s.config.PortPatterns {
			if strings.Contains(port, pattern) {
				filtered = append(filtered, port)
				break
			}
		}
	}
	return filtered
}

func defaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM"}
	case "darwin":
		return []string{"tty.usbserial", "tty.usbmodem", "cu.usbserial"}
	default:
		return []string{"ttyUSB", "ttyACM", "ttyAMA"}
	}
}
