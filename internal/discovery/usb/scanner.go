// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"lora-config-service/internal/discovery"
	"lora-config-service/internal/model"
)

// bridge identifies a USB-UART bridge chip the radio modules ship behind.
type bridge struct {
	vendor  gousb.ID
	product gousb.ID
	name    string
}

// Every E22 evaluation board and field adapter seen so far uses one of these
// bridges; the radio itself has no USB interface.
var knownBridges = []bridge{
	{0x10C4, 0xEA60, "CP210x"},
	{0x1A86, 0x7523, "CH340"},
	{0x1A86, 0x55D4, "CH9102"},
	{0x0403, 0x6001, "FT232R"},
	{0x0403, 0x6015, "FT231X"},
}

// Scanner finds USB-UART bridges that likely carry a radio module
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for the USB scanner
type Config struct {
	ScanTimeout time.Duration `json:"scan_timeout"`
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{ScanTimeout: 10 * time.Second}
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "usb")),
		config: config,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string { return "usb" }

// IsAvailable checks if USB scanning is available on this system
func (s *Scanner) IsAvailable() bool {
	return runtime.GOOS == "linux" || runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}

// Scan enumerates USB devices and reports known UART bridges. The bridge only
// proves an adapter is plugged in; the serial scanner confirms whether a
// module answers behind it, so confidence stays moderate.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredModule, error) {
	s.logger.Info("Starting USB device scan")

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var found []*discovery.DiscoveredModule

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return matchBridge(desc) != nil
	})
	for _, dev := range devices {
		b := matchBridge(dev.Desc)
		if b == nil {
			dev.Close()
			continue
		}

		serialNumber, _ := dev.SerialNumber()
		found = append(found, &discovery.DiscoveredModule{
			ConnectionType: model.ConnectionTypeUSB,
			ConnectionInfo: map[string]interface{}{
				"vendor_id":     fmt.Sprintf("%04x", uint16(dev.Desc.Vendor)),
				"product_id":    fmt.Sprintf("%04x", uint16(dev.Desc.Product)),
				"bridge":        b.name,
				"serial_number": serialNumber,
			},
			Confidence: 0.5,
			Location:   fmt.Sprintf("usb bus %d addr %d", dev.Desc.Bus, dev.Desc.Address),
		})
		dev.Close()
	}
	if err != nil {
		// OpenDevices returns partial results alongside per-device errors.
		s.logger.Debug("Some USB devices could not be opened", zap.Error(err))
	}

	s.logger.Info("USB scan completed", zap.Int("bridges_found", len(found)))
	return found, nil
}

func matchBridge(desc *gousb.DeviceDesc) *bridge {
	for i := range knownBridges {
		if desc.Vendor == knownBridges[i].vendor && desc.Product == knownBridges[i].product {
			return &knownBridges[i]
		}
	}
	return nil
}
