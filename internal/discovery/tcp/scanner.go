// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lora-config-service/internal/discovery"
	"lora-config-service/internal/model"
	"lora-config-service/internal/transport"
	"lora-config-service/pkg/lora/register"
)

// Scanner probes configured hosts for DTU gateways answering AT+LORA
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for the TCP scanner. Gateways sit on known hosts, so discovery
// probes a candidate list rather than sweeping subnets.
type Config struct {
	Hosts       []string      `json:"hosts"`
	Port        int           `json:"port"`
	ConnTimeout time.Duration `json:"connection_timeout"`
}

// NewScanner creates a new TCP scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{
			Port:        8886,
			ConnTimeout: 3 * time.Second,
		}
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: config,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string { return "tcp" }

// IsAvailable checks if TCP scanning is available
func (s *Scanner) IsAvailable() bool { return len(s.config.Hosts) > 0 }

// Scan probes each candidate host with a configuration query.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredModule, error) {
	s.logger.Info("Starting TCP gateway scan", zap.Int("hosts", len(s.config.Hosts)))

	var found []*discovery.DiscoveredModule
	for _, host := range s.config.Hosts {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}
		if module := s.probeHost(ctx, host); module != nil {
			found = append(found, module)
		}
	}

	s.logger.Info("TCP scan completed", zap.Int("modules_found", len(found)))
	return found, nil
}

func (s *Scanner) probeHost(ctx context.Context, host string) *discovery.DiscoveredModule {
	tr := transport.NewTCP(&transport.TCPConfig{
		Host:         host,
		Port:         s.config.Port,
		Timeout:      s.config.ConnTimeout,
		ReadTimeout:  s.config.ConnTimeout,
		WriteTimeout: s.config.ConnTimeout,
	}, s.logger)

	if err := tr.Open(ctx); err != nil {
		s.logger.Debug("Host unreachable", zap.String("host", host), zap.Error(err))
		return nil
	}
	defer tr.Close()

	if err := tr.Write(ctx, []byte(register.QueryAT()+"\r\n")); err != nil {
		return nil
	}
	raw, err := tr.Read(ctx, 256)
	if err != nil || len(raw) == 0 {
		return nil
	}

	reply := strings.TrimSpace(string(raw))
	if !strings.Contains(reply, "LORA") {
		return nil
	}

	return &discovery.DiscoveredModule{
		ConnectionType: model.ConnectionTypeTCP,
		ConnectionInfo: map[string]interface{}{
			"host": host,
			"port": s.config.Port,
		},
		Variant:    register.E90DTU400SL.Name,
		Confidence: 0.9,
		Location:   fmt.Sprintf("%s:%d", host, s.config.Port),
	}
}
