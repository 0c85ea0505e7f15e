// Package session drives a configuration dialogue with one radio module over
// one transport. A Session owns its transport exclusively, runs exactly one
// command at a time, and applies a bounded retry policy to retryable failures.
package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/frame"
	"lora-config-service/pkg/lora/register"
)

// State is the session lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateReady
	StateReading
	StateWriting
	StateVerifying
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateVerifying:
		return "verifying"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes the retry policy. The zero value disables retries.
type Options struct {
	// MaxRetries is the number of additional attempts after the first, applied
	// only to retryable failures (timeout, malformed response).
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultOptions matches the timing the modules tolerate in practice.
func DefaultOptions() Options {
	return Options{MaxRetries: 2, RetryDelay: 200 * time.Millisecond}
}

// Session is a stateful configuration dialogue over the binary register
// protocol. All methods are safe for concurrent use; commands serialize on an
// internal mutex so at most one frame is in flight per transport.
type Session struct {
	tr     lora.Transport
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	variant  register.Variant
	detected bool
}

// New builds a session around an unopened transport. The fallback variant is
// used as-is when the device does not answer the version probe; when it does,
// the detected band replaces the fallback's band (power class is kept).
func New(tr lora.Transport, fallback register.Variant, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		tr:      tr,
		opts:    opts,
		logger:  logger.With(zap.String("component", "session")),
		state:   StateClosed,
		variant: fallback,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Variant returns the active device variant.
func (s *Session) Variant() register.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// VariantDetected reports whether the active variant came from a successful
// version probe rather than the configured fallback.
func (s *Session) VariantDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detected
}

// Open opens the transport and runs variant detection. A failed probe is not
// an error: the session keeps the fallback variant and logs the downgrade.
// Any other failure closes the transport again and leaves the session Closed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		return fmt.Errorf("session is %s, must be closed before opening", s.state)
	}
	s.state = StateOpening

	if err := s.tr.Open(ctx); err != nil {
		s.state = StateClosed
		return fmt.Errorf("failed to open transport: %w", err)
	}

	v, err := DetectVariant(ctx, s.tr, s.variant)
	if err != nil {
		if !lora.IsKind(err, lora.KindUnsupportedCommand) {
			s.tr.Close()
			s.state = StateClosed
			return fmt.Errorf("variant detection failed: %w", err)
		}
		s.logger.Info("version probe unsupported, keeping fallback variant",
			zap.String("variant", s.variant.Name), zap.Error(err))
	} else {
		s.logger.Info("variant detected",
			zap.String("fallback", s.variant.Name), zap.String("variant", v.Name))
		s.variant = v
		s.detected = true
	}

	s.state = StateReady
	return nil
}

// Close shuts the transport down. Safe to call from any state, including a
// half-open one left behind by a failed Open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosing
	err := s.tr.Close()
	s.state = StateClosed
	if err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// ReadConfig reads and decodes the 9-byte configuration block.
func (s *Session) ReadConfig(ctx context.Context) (register.ConfigBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateReading); err != nil {
		return register.ConfigBlock{}, err
	}
	defer s.leave()

	raw, err := s.readConfigBytes(ctx)
	if err != nil {
		return register.ConfigBlock{}, err
	}
	return register.Decode(s.variant, raw)
}

// WriteConfig encodes and writes the configuration block, then reads it back
// and compares byte-for-byte, ignoring the write-only key bytes. Any
// disagreement, in the write acknowledgement or in the read-back, is a
// PersistenceMismatch and is never retried. With save set the parameters
// persist across power cycles; without it they are lost on power-down.
//
// The read-back configuration is returned so callers can report what the
// device actually holds.
func (s *Session) WriteConfig(ctx context.Context, cfg register.ConfigBlock, save bool) (register.ConfigBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateWriting); err != nil {
		return register.ConfigBlock{}, err
	}
	defer s.leave()

	// Validation happens entirely before any bytes are sent.
	intended, err := register.Encode(s.variant, cfg)
	if err != nil {
		return register.ConfigBlock{}, err
	}
	req, err := frame.EncodeWrite(frame.ConfigAddress, frame.ConfigLength, intended, save)
	if err != nil {
		return register.ConfigBlock{}, err
	}

	ack, err := s.exchange(ctx, req, frame.ConfigAddress, frame.ConfigLength)
	if err != nil {
		return register.ConfigBlock{}, err
	}
	if !configEqual(ack, intended) {
		return register.ConfigBlock{}, &lora.Error{
			Kind: lora.KindPersistenceMismatch, Op: "session.WriteConfig",
			Detail: "write acknowledgement differs from the written parameters", Raw: ack,
		}
	}

	s.state = StateVerifying
	readBack, err := s.readConfigBytes(ctx)
	if err != nil {
		return register.ConfigBlock{}, fmt.Errorf("post-write verification read failed: %w", err)
	}
	if !configEqual(readBack, intended) {
		return register.ConfigBlock{}, &lora.Error{
			Kind: lora.KindPersistenceMismatch, Op: "session.WriteConfig",
			Detail: "read-back differs from the written parameters", Raw: readBack,
		}
	}

	s.logger.Info("configuration written and verified",
		zap.String("variant", s.variant.Name),
		zap.Uint16("address", cfg.Address),
		zap.Uint8("channel", cfg.Channel),
		zap.Bool("saved", save))
	return register.Decode(s.variant, readBack)
}

// WriteKey writes the AES key registers. The key cannot be verified by
// read-back: the module always reports the key bytes as zero, so the only
// check is the write acknowledgement header.
func (s *Session) WriteKey(ctx context.Context, key uint16, save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateWriting); err != nil {
		return err
	}
	defer s.leave()

	payload := []byte{byte(key >> 8), byte(key & 0xFF)}
	req, err := frame.EncodeWrite(frame.KeyAddress, frame.KeyLength, payload, save)
	if err != nil {
		return err
	}
	_, err = s.exchange(ctx, req, frame.KeyAddress, frame.KeyLength)
	return err
}

// QueryRSSI reads the ambient-noise and last-receive signal levels. Requires
// ambient-noise measurement to be enabled in the configuration; firmware
// without the probe yields UnsupportedCommand.
func (s *Session) QueryRSSI(ctx context.Context) (frame.RSSI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateReading); err != nil {
		return frame.RSSI{}, err
	}
	defer s.leave()

	req := frame.EncodeRSSIQuery()
	payload, err := s.exchange(ctx, req, 0x00, 0x02)
	if err != nil {
		if lora.IsKind(err, lora.KindTimeout) {
			return frame.RSSI{}, lora.Errf(lora.KindUnsupportedCommand, "session.QueryRSSI",
				"no response to RSSI probe; firmware likely does not implement it")
		}
		return frame.RSSI{}, err
	}
	return frame.RSSIFromPayload(payload), nil
}

// ProductInfo reads the raw product information block. Not all firmware
// implements it; timeouts are reported as UnsupportedCommand.
func (s *Session) ProductInfo(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateReading); err != nil {
		return nil, err
	}
	defer s.leave()

	req := frame.EncodeRead(frame.InfoAddress, frame.InfoLength)
	payload, err := s.exchange(ctx, req, frame.InfoAddress, frame.InfoLength)
	if err != nil && lora.IsKind(err, lora.KindTimeout) {
		return nil, lora.Errf(lora.KindUnsupportedCommand, "session.ProductInfo",
			"no response to product information read")
	}
	return payload, err
}

func (s *Session) enter(next State) error {
	if s.state != StateReady {
		return fmt.Errorf("session is %s, not ready", s.state)
	}
	s.state = next
	return nil
}

func (s *Session) leave() { s.state = StateReady }

func (s *Session) readConfigBytes(ctx context.Context) ([]byte, error) {
	req := frame.EncodeRead(frame.ConfigAddress, frame.ConfigLength)
	return s.exchange(ctx, req, frame.ConfigAddress, frame.ConfigLength)
}

// exchange runs one request/response cycle with the retry policy. The
// transport is drained before every attempt so stale bytes from an aborted
// exchange cannot be misread as this command's response.
func (s *Session) exchange(ctx context.Context, req []byte, address, length byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying command",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, lora.Errf(lora.KindTimeout, "session.exchange", "%v", ctx.Err())
			case <-time.After(s.opts.RetryDelay):
			}
		}

		if err := s.tr.Drain(ctx); err != nil {
			return nil, fmt.Errorf("failed to drain transport: %w", err)
		}
		if err := s.tr.Write(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to write request: %w", err)
		}
		raw, err := s.tr.Read(ctx, 3+int(length)+16)
		if err != nil {
			lastErr = lora.Errf(lora.KindTimeout, "session.exchange", "read failed: %v", err)
			continue
		}

		payload, derr := frame.DecodeResponse(req, raw, address, length)
		if derr == nil {
			return payload, nil
		}
		if !lora.KindOf(derr).Retryable() {
			return nil, derr
		}
		lastErr = derr
	}
	return nil, lastErr
}

// configEqual compares two 9-byte register blocks ignoring the key bytes,
// which the module reports as zero regardless of what was written.
func configEqual(a, b []byte) bool {
	if len(a) < 7 || len(b) < 7 {
		return false
	}
	return bytes.Equal(a[:7], b[:7])
}
