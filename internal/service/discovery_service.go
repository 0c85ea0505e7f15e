// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lora-config-service/internal/config"
	"lora-config-service/internal/discovery"
	serialscanner "lora-config-service/internal/discovery/serial"
	tcpscanner "lora-config-service/internal/discovery/tcp"
	usbscanner "lora-config-service/internal/discovery/usb"
	"lora-config-service/internal/event"
)

// DiscoveryService coordinates module discovery across attachment types
type DiscoveryService struct {
	manager *discovery.ScannerManager
	bus     *event.Bus
	logger  *zap.Logger
}

// NewDiscoveryService creates a discovery service with the serial, TCP and
// USB scanners registered.
func NewDiscoveryService(cfg *config.Config, bus *event.Bus, logger *zap.Logger) *DiscoveryService {
	manager := discovery.NewScannerManager(logger)

	manager.RegisterScanner(serialscanner.NewScanner(logger, nil))
	manager.RegisterScanner(tcpscanner.NewScanner(logger, &tcpscanner.Config{
		Hosts:       cfg.Radio.DiscoveryHosts,
		Port:        cfg.Radio.TCP.Port,
		ConnTimeout: cfg.Radio.TCP.ConnectTimeout,
	}))
	manager.RegisterScanner(usbscanner.NewScanner(logger, nil))

	return &DiscoveryService{
		manager: manager,
		bus:     bus,
		logger:  logger.With(zap.String("service", "discovery")),
	}
}

// Scan runs every available scanner and publishes the merged results
func (s *DiscoveryService) Scan(ctx context.Context) ([]*discovery.DiscoveredModule, error) {
	start := time.Now()
	modules, err := s.manager.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery scan failed: %w", err)
	}

	s.logger.Info("Discovery scan completed",
		zap.Int("modules_found", len(modules)),
		zap.Duration("duration", time.Since(start)),
	)
	s.publishResults("all", modules)
	return modules, nil
}

// ScanByType runs one scanner
func (s *DiscoveryService) ScanByType(ctx context.Context, scannerType string) ([]*discovery.DiscoveredModule, error) {
	modules, err := s.manager.ScanByType(ctx, scannerType)
	if err != nil {
		return nil, err
	}
	s.publishResults(scannerType, modules)
	return modules, nil
}

// AvailableScanners returns scanner types usable on this host
func (s *DiscoveryService) AvailableScanners() []string {
	return s.manager.GetAvailableScanners()
}

func (s *DiscoveryService) publishResults(scannerType string, modules []*discovery.DiscoveredModule) {
	s.bus.Publish(event.Event{
		Type:   event.TypeDiscovery,
		Source: "discovery",
		Data: map[string]interface{}{
			"scanner": scannerType,
			"count":   len(modules),
			"modules": modules,
		},
	})
}
