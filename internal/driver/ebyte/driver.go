// Package ebyte drives serial-attached E22-family modules over the binary
// register protocol.
package ebyte

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lora-config-service/internal/driver"
	"lora-config-service/internal/model"
	"lora-config-service/internal/transport"
	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/frame"
	"lora-config-service/pkg/lora/register"
	"lora-config-service/pkg/lora/session"
)

// Driver implements driver.ModuleDriver for E22-family modules.
type Driver struct {
	module    *model.Module
	session   *session.Session
	transport lora.Transport
	logger    *zap.Logger

	mutex     sync.Mutex
	connected bool
	lastPing  time.Time
}

// New creates a binary-protocol driver. The transport is built from the
// module's stored connection configuration; nothing is opened until Connect.
func New(module *model.Module, variant register.Variant, opts session.Options, logger *zap.Logger) (driver.ModuleDriver, error) {
	if variant.UsesAT() {
		return nil, fmt.Errorf("variant %s requires the AT driver", variant.Name)
	}

	moduleLogger := logger.With(
		zap.String("driver", "ebyte"),
		zap.String("module", module.Name),
		zap.String("variant", variant.Name),
	)

	tr, err := transport.Create(module.ConnectionType, module.ConnectionConfig, moduleLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Driver{
		module:    module,
		session:   session.New(tr, variant, opts, moduleLogger),
		transport: tr,
		logger:    moduleLogger,
	}, nil
}

// Connect opens the session, which runs variant detection against the module.
func (d *Driver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.connected {
		return nil
	}
	if err := d.session.Open(ctx); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	d.connected = true
	d.lastPing = time.Now()
	d.logger.Info("Module connected",
		zap.String("active_variant", d.session.Variant().Name),
		zap.Bool("variant_detected", d.session.VariantDetected()),
	)
	return nil
}

// Disconnect closes the session and its transport.
func (d *Driver) Disconnect() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	d.logger.Info("Module disconnected", statsFields(d.transport)...)
	return nil
}

// statsFields renders the transport traffic counters for the session-end log.
func statsFields(tr lora.Transport) []zap.Field {
	sp, ok := tr.(transport.StatsProvider)
	if !ok {
		return nil
	}
	stats := sp.GetStats()
	return []zap.Field{
		zap.Int64("bytes_written", stats.BytesWritten),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("transport_errors", stats.ErrorCount),
	}
}

// IsConnected reports whether the session is open.
func (d *Driver) IsConnected() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connected
}

// Ping verifies the module still answers by reading its configuration block.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.session.ReadConfig(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	d.mutex.Lock()
	d.lastPing = time.Now()
	d.mutex.Unlock()
	return nil
}

// ReadConfig reads the current configuration.
func (d *Driver) ReadConfig(ctx context.Context) (register.ConfigBlock, error) {
	return d.session.ReadConfig(ctx)
}

// WriteConfig writes and verifies a configuration.
func (d *Driver) WriteConfig(ctx context.Context, cfg register.ConfigBlock, save bool) (register.ConfigBlock, error) {
	return d.session.WriteConfig(ctx, cfg, save)
}

// WriteKey writes the encryption key registers.
func (d *Driver) WriteKey(ctx context.Context, key uint16, save bool) error {
	return d.session.WriteKey(ctx, key, save)
}

// QueryRSSI reads the signal level registers.
func (d *Driver) QueryRSSI(ctx context.Context) (frame.RSSI, error) {
	return d.session.QueryRSSI(ctx)
}

// ProductInfo reads the product information block.
func (d *Driver) ProductInfo(ctx context.Context) ([]byte, error) {
	return d.session.ProductInfo(ctx)
}

// Variant returns the active variant profile.
func (d *Driver) Variant() register.Variant {
	return d.session.Variant()
}

// VariantDetected reports whether the variant came from the version probe.
func (d *Driver) VariantDetected() bool {
	return d.session.VariantDetected()
}
