// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lora-config-service/internal/model"
)

// ModuleScanner probes one attachment type for configurable radio modules
type ModuleScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredModule, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredModule represents a module found during a scan
type DiscoveredModule struct {
	ConnectionType model.ConnectionType   `json:"connection_type"`
	ConnectionInfo map[string]interface{} `json:"connection_info"`
	Variant        string                 `json:"variant,omitempty"`
	Confidence     float64                `json:"confidence"` // 0.0-1.0
	Location       string                 `json:"location,omitempty"`
}

// ScannerManager fans a discovery request out to all registered scanners
type ScannerManager struct {
	scanners map[string]ModuleScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]ModuleScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a module scanner
func (sm *ScannerManager) RegisterScanner(scanner ModuleScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner and merges the results
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredModule, error) {
	var allModules []*DiscoveredModule

	for scannerType, scanner := range sm.scanners {
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		modules, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allModules = append(allModules, modules...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("modules_found", len(modules)),
		)
	}
	return allModules, nil
}

// ScanByType runs one specific scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredModule, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}
	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}
	return scanner.Scan(ctx)
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}
