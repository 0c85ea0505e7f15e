package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"lora-config-service/pkg/lora"
)

// interByteTimeout ends a frame: once the first byte has arrived, a gap this
// long means the module is done talking.
const interByteTimeout = 100 * time.Millisecond

// Serial implements lora.Transport over a local serial port or a USB-UART
// bridge.
type Serial struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  Stats
}

// NewSerial creates a serial transport. The port is not opened until Open.
func NewSerial(config *SerialConfig, logger *zap.Logger) *Serial {
	return &Serial{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens and configures the serial port.
func (s *Serial) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return nil
	}

	s.logger.Info("Opening serial port",
		zap.Int("baud_rate", s.config.BaudRate),
		zap.String("parity", s.config.Parity),
	)

	mode := &serial.Mode{
		BaudRate: s.config.BaudRate,
		DataBits: s.config.DataBits,
		StopBits: serial.StopBits(s.config.StopBits),
	}
	switch s.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(s.config.Port, mode)
	if err != nil {
		s.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.SetReadTimeout(s.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	s.port = port
	s.isOpen = true
	s.stats.IsConnected = true
	s.stats.LastActivity = time.Now()

	s.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.port == nil {
		return nil
	}
	if err := s.port.Close(); err != nil {
		s.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	s.port = nil
	s.isOpen = false
	s.stats.IsConnected = false
	s.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the port is open.
func (s *Serial) IsOpen() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isOpen && s.port != nil
}

// Write writes a complete request frame to the port.
func (s *Serial) Write(ctx context.Context, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.port == nil {
		return fmt.Errorf("serial port not open")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := s.port.Write(data)
	if err != nil {
		s.stats.ErrorCount++
		s.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	s.stats.BytesWritten += int64(len(data))
	s.stats.LastActivity = time.Now()
	s.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

// Read collects one response frame: it waits up to the configured timeout for
// the first byte, then keeps reading until an inter-byte gap or maxBytes. An
// expired timeout with no data returns an empty slice and nil error, which the
// protocol layer classifies as a timeout.
func (s *Serial) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.port == nil {
		return nil, fmt.Errorf("serial port not open")
	}

	frame := make([]byte, 0, maxBytes)
	buffer := make([]byte, maxBytes)

	for len(frame) < maxBytes {
		select {
		case <-ctx.Done():
			return frame, ctx.Err()
		default:
		}

		n, err := s.port.Read(buffer[:maxBytes-len(frame)])
		if n > 0 {
			frame = append(frame, buffer[:n]...)
			// Switch to the short gap timeout once the frame has started.
			if err == nil && len(frame) < maxBytes {
				if terr := s.port.SetReadTimeout(interByteTimeout); terr != nil {
					break
				}
				continue
			}
		}
		if err != nil && err != io.EOF {
			s.stats.ErrorCount++
			s.restoreTimeout()
			return nil, fmt.Errorf("failed to read from serial port: %w", err)
		}
		if n == 0 {
			break
		}
	}

	s.restoreTimeout()
	s.stats.BytesRead += int64(len(frame))
	s.stats.LastActivity = time.Now()
	s.logger.Debug("Serial read completed", zap.Int("bytes", len(frame)))
	return frame, nil
}

// Drain discards anything sitting in the input buffer.
func (s *Serial) Drain(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen || s.port == nil {
		return fmt.Errorf("serial port not open")
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to drain serial port: %w", err)
	}
	return nil
}

// GetStats returns a snapshot of the transport statistics.
func (s *Serial) GetStats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stats
}

func (s *Serial) restoreTimeout() {
	if s.port != nil {
		s.port.SetReadTimeout(s.config.Timeout)
	}
}

var (
	_ lora.Transport = (*Serial)(nil)
	_ StatsProvider  = (*Serial)(nil)
)
