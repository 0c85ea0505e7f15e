package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/register"
)

// ATSession drives the network-attached DTU family over the textual AT+LORA
// command set. Same lifecycle and retry discipline as Session; no variant
// detection, because the DTU gateways do not implement the binary version
// probe and the variant comes from configuration.
type ATSession struct {
	tr     lora.Transport
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	variant register.Variant
}

// NewAT builds an AT session. The variant must be an AT-capable profile.
func NewAT(tr lora.Transport, variant register.Variant, opts Options, logger *zap.Logger) (*ATSession, error) {
	if !variant.UsesAT() {
		return nil, lora.Errf(lora.KindVariantMismatch, "session.NewAT",
			"%s speaks the binary register protocol, not AT", variant.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ATSession{
		tr:      tr,
		opts:    opts,
		logger:  logger.With(zap.String("component", "at_session")),
		state:   StateClosed,
		variant: variant,
	}, nil
}

// State returns the current lifecycle state.
func (s *ATSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Variant returns the configured device variant.
func (s *ATSession) Variant() register.Variant {
	return s.variant
}

// Open opens the transport.
func (s *ATSession) Open(ctx context.Context) error {
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
	s.state = StateReady
	return nil
}

// Close shuts the transport down. Safe from any state.
func (s *ATSession) Close() error {
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

// ReadConfig queries the current configuration with a bare AT+LORA.
func (s *ATSession) ReadConfig(ctx context.Context) (register.ConfigBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateReading); err != nil {
		return register.ConfigBlock{}, err
	}
	defer s.leave()

	return s.readConfig(ctx)
}

// WriteConfig sends the full 14-field set command, then queries the
// configuration back and compares every field except the write-only key. Any
// disagreement is a PersistenceMismatch and is never retried.
func (s *ATSession) WriteConfig(ctx context.Context, cfg register.ConfigBlock) (register.ConfigBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(StateWriting); err != nil {
		return register.ConfigBlock{}, err
	}
	defer s.leave()

	cmd, err := register.MarshalAT(s.variant, cfg)
	if err != nil {
		return register.ConfigBlock{}, err
	}
	reply, err := s.exchange(ctx, cmd)
	if err != nil {
		return register.ConfigBlock{}, err
	}
	if !strings.Contains(reply, "OK") && !strings.Contains(reply, "+LORA") {
		return register.ConfigBlock{}, &lora.Error{
			Kind: lora.KindMalformedResponse, Op: "session.WriteConfig",
			Detail: fmt.Sprintf("unexpected set response %q", reply),
		}
	}

	s.state = StateVerifying
	readBack, err := s.readConfig(ctx)
	if err != nil {
		return register.ConfigBlock{}, fmt.Errorf("post-write verification read failed: %w", err)
	}

	want, got := cfg, readBack
	want.Key, got.Key = 0, 0
	if want != got {
		return register.ConfigBlock{}, &lora.Error{
			Kind: lora.KindPersistenceMismatch, Op: "session.WriteConfig",
			Detail: "read-back configuration differs from the written parameters",
		}
	}

	s.logger.Info("configuration written and verified",
		zap.String("variant", s.variant.Name),
		zap.Uint16("address", cfg.Address),
		zap.Uint8("channel", cfg.Channel))
	return readBack, nil
}

func (s *ATSession) readConfig(ctx context.Context) (register.ConfigBlock, error) {
	reply, err := s.exchange(ctx, register.QueryAT())
	if err != nil {
		return register.ConfigBlock{}, err
	}
	return register.UnmarshalAT(s.variant, reply)
}

func (s *ATSession) enter(next State) error {
	if s.state != StateReady {
		return fmt.Errorf("session is %s, not ready", s.state)
	}
	s.state = next
	return nil
}

func (s *ATSession) leave() { s.state = StateReady }

// exchange sends one command line and collects the textual reply, with the
// same retry policy as the binary session. A reply equal to the command line
// means the gateway forwarded it over the air instead of interpreting it:
// pass-through mode, never retried.
func (s *ATSession) exchange(ctx context.Context, cmd string) (string, error) {
	const op = "session.exchange"
	line := []byte(cmd + "\r\n")

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying AT command",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", lora.Errf(lora.KindTimeout, op, "%v", ctx.Err())
			case <-time.After(s.opts.RetryDelay):
			}
		}

		if err := s.tr.Drain(ctx); err != nil {
			return "", fmt.Errorf("failed to drain transport: %w", err)
		}
		if err := s.tr.Write(ctx, line); err != nil {
			return "", fmt.Errorf("failed to write command: %w", err)
		}
		raw, err := s.tr.Read(ctx, 256)
		if err != nil {
			lastErr = lora.Errf(lora.KindTimeout, op, "read failed: %v", err)
			continue
		}
		if len(raw) == 0 {
			lastErr = lora.Errf(lora.KindTimeout, op, "no response within deadline")
			continue
		}

		reply := strings.TrimSpace(string(raw))
		if reply == cmd {
			return "", &lora.Error{Kind: lora.KindEchoDetected, Op: op,
				Detail: "gateway echoed the command; device is not in configuration mode", Raw: raw}
		}
		if strings.Contains(reply, "ERROR") {
			lastErr = &lora.Error{Kind: lora.KindMalformedResponse, Op: op,
				Detail: fmt.Sprintf("gateway reported error for %q", cmd), Raw: raw}
			continue
		}
		return reply, nil
	}
	return "", lastErr
}
