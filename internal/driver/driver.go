// Package driver binds a registered module to a live configuration session.
package driver

import (
	"context"

	"lora-config-service/pkg/lora/frame"
	"lora-config-service/pkg/lora/register"
)

// ModuleDriver is what the service layer talks to. One driver owns one
// transport and one session; commands serialize inside the session.
type ModuleDriver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Ping(ctx context.Context) error

	ReadConfig(ctx context.Context) (register.ConfigBlock, error)
	WriteConfig(ctx context.Context, cfg register.ConfigBlock, save bool) (register.ConfigBlock, error)
	WriteKey(ctx context.Context, key uint16, save bool) error
	QueryRSSI(ctx context.Context) (frame.RSSI, error)
	ProductInfo(ctx context.Context) ([]byte, error)

	Variant() register.Variant
	VariantDetected() bool
}
