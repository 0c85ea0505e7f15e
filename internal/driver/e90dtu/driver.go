// Package e90dtu drives network-attached E90-DTU gateways over the AT+LORA
// command set.
package e90dtu

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

// Driver implements driver.ModuleDriver for DTU gateways.
type Driver struct {
	module    *model.Module
	session   *session.ATSession
	transport lora.Transport
	logger    *zap.Logger

	mutex     sync.Mutex
	connected bool
	lastPing  time.Time
}

// New creates an AT-protocol driver over a TCP transport.
func New(module *model.Module, variant register.Variant, opts session.Options, logger *zap.Logger) (driver.ModuleDriver, error) {
	moduleLogger := logger.With(
		zap.String("driver", "e90dtu"),
		zap.String("module", module.Name),
		zap.String("variant", variant.Name),
	)

	tr, err := transport.Create(module.ConnectionType, module.ConnectionConfig, moduleLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	sess, err := session.NewAT(tr, variant, opts, moduleLogger)
	if err != nil {
		return nil, err
	}

	return &Driver{
		module:    module,
		session:   sess,
		transport: tr,
		logger:    moduleLogger,
	}, nil
}

// Connect dials the gateway.
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
	d.logger.Info("Gateway connected")
	return nil
}

// Disconnect closes the session.
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
	d.logger.Info("Gateway disconnected", statsFields(d.transport)...)
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

// Ping verifies the gateway still answers the configuration query.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.session.ReadConfig(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	d.mutex.Lock()
	d.lastPing = time.Now()
	d.mutex.Unlock()
	return nil
}

// ReadConfig queries the current configuration.
func (d *Driver) ReadConfig(ctx context.Context) (register.ConfigBlock, error) {
	return d.session.ReadConfig(ctx)
}

// WriteConfig writes and verifies a configuration. The AT command set has no
// volatile write; save is accepted for interface symmetry and ignored.
func (d *Driver) WriteConfig(ctx context.Context, cfg register.ConfigBlock, save bool) (register.ConfigBlock, error) {
	return d.session.WriteConfig(ctx, cfg)
}

// WriteKey sets the key through a full configuration write; the AT command
// set has no separate key command.
func (d *Driver) WriteKey(ctx context.Context, key uint16, save bool) error {
	cfg, err := d.session.ReadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Key = key
	_, err = d.session.WriteConfig(ctx, cfg)
	return err
}

// QueryRSSI is not available on the AT wire.
func (d *Driver) QueryRSSI(ctx context.Context) (frame.RSSI, error) {
	return frame.RSSI{}, lora.Errf(lora.KindUnsupportedCommand, "e90dtu.QueryRSSI",
		"RSSI registers are not exposed by the AT command set")
}

// ProductInfo is not available on the AT wire.
func (d *Driver) ProductInfo(ctx context.Context) ([]byte, error) {
	return nil, lora.Errf(lora.KindUnsupportedCommand, "e90dtu.ProductInfo",
		"product information is not exposed by the AT command set")
}

// Variant returns the configured variant profile.
func (d *Driver) Variant() register.Variant {
	return d.session.Variant()
}

// VariantDetected is always false: DTU gateways do not implement the binary
// version probe, the variant comes from configuration.
func (d *Driver) VariantDetected() bool { return false }
