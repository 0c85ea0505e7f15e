package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"lora-config-service/pkg/lora"
)

// TCP implements lora.Transport over a network connection to a DTU gateway.
type TCP struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  Stats
}

// NewTCP creates a TCP transport. The connection is not dialed until Open.
func NewTCP(config *TCPConfig, logger *zap.Logger) *TCP {
	return &TCP{
		config: config,
		logger: logger.With(
			zap.String("transport", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the gateway.
func (t *TCP) Open(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.isOpen {
		return nil
	}

	t.logger.Info("Opening TCP connection")

	dialer := &net.Dialer{
		Timeout:   t.config.Timeout,
		KeepAlive: 30 * time.Second,
	}
	address := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		t.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && t.config.KeepAlive {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	t.conn = conn
	t.isOpen = true
	t.stats.IsConnected = true
	t.stats.LastActivity = time.Now()

	t.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the connection.
func (t *TCP) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.isOpen || t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		t.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	t.conn = nil
	t.isOpen = false
	t.stats.IsConnected = false
	t.logger.Info("TCP connection closed")
	return nil
}

// IsOpen returns whether the connection is open.
func (t *TCP) IsOpen() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.isOpen && t.conn != nil
}

// Write writes a complete request to the connection.
func (t *TCP) Write(ctx context.Context, data []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.isOpen || t.conn == nil {
		return fmt.Errorf("TCP connection not open")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.config.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}
	n, err := t.conn.Write(data)
	if err != nil {
		t.stats.ErrorCount++
		t.logger.Error("TCP write failed", zap.Error(err))
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	t.stats.BytesWritten += int64(len(data))
	t.stats.LastActivity = time.Now()
	t.logger.Debug("TCP write completed", zap.Int("bytes", n))
	return nil
}

// Read collects one response: it waits up to the read timeout for the first
// bytes, then keeps reading with a short gap deadline until the gateway stops
// sending or maxBytes is reached. A deadline expiry with no data returns an
// empty slice and nil error.
func (t *TCP) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.isOpen || t.conn == nil {
		return nil, fmt.Errorf("TCP connection not open")
	}

	frame := make([]byte, 0, maxBytes)
	buffer := make([]byte, maxBytes)
	deadline := t.config.ReadTimeout

	for len(frame) < maxBytes {
		select {
		case <-ctx.Done():
			return frame, ctx.Err()
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(deadline))
		n, err := t.conn.Read(buffer[:maxBytes-len(frame)])
		if n > 0 {
			frame = append(frame, buffer[:n]...)
			deadline = interByteTimeout
		}
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				break
			}
			t.stats.ErrorCount++
			return nil, fmt.Errorf("failed to read from TCP connection: %w", err)
		}
	}

	t.stats.BytesRead += int64(len(frame))
	t.stats.LastActivity = time.Now()
	t.logger.Debug("TCP read completed", zap.Int("bytes", len(frame)))
	return frame, nil
}

// Drain discards buffered input left over from an aborted exchange.
func (t *TCP) Drain(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.isOpen || t.conn == nil {
		return fmt.Errorf("TCP connection not open")
	}

	buffer := make([]byte, 256)
	for {
		t.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
		n, err := t.conn.Read(buffer)
		if n == 0 || err != nil {
			break
		}
	}
	return nil
}

// GetStats returns a snapshot of the transport statistics.
func (t *TCP) GetStats() Stats {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stats
}

var (
	_ lora.Transport = (*TCP)(nil)
	_ StatsProvider  = (*TCP)(nil)
)
