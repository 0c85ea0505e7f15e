package lora

import "context"

// Transport is the byte channel a session talks through: a serial line or a
// TCP stream. Implementations live outside this package; the session only
// needs bounded-time reads and writes plus a way to discard stale input.
//
// Read returns whatever bytes arrived within the transport's configured
// deadline; an expired deadline with no data yields an empty slice and a nil
// error, which the frame codec classifies as a timeout. Partial bytes from an
// aborted exchange must never leak into a later response, so Drain is called
// before every command.
type Transport interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)
	Drain(ctx context.Context) error
	Close() error
	IsOpen() bool
}
