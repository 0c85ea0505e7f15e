// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lora-config-service/internal/service"
	"lora-config-service/internal/utils"
)

// DiscoveryHandler handles module discovery HTTP requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           logger.With(zap.String("handler", "discovery")),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.POST("/scan", h.Scan)
		discovery.POST("/scan/:type", h.ScanByType)
		discovery.GET("/scanners", h.ListScanners)
	}
}

// Scan runs every available scanner
// @Summary Discover modules
// @Description Probe serial ports, USB bridges and configured gateways for radio modules
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]discovery.DiscoveredModule} "Scan completed"
// @Router /discovery/scan [post]
func (h *DiscoveryHandler) Scan(c *gin.Context) {
	modules, err := h.discoveryService.Scan(c.Request.Context())
	if err != nil {
		h.logger.Error("Discovery scan failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Discovery scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Discovery scan completed", gin.H{
		"modules": modules,
		"count":   len(modules),
	})
}

// ScanByType runs one specific scanner
// @Summary Discover modules by scanner type
// @Tags Discovery
// @Produce json
// @Param type path string true "Scanner type" Enums(serial, tcp, usb)
// @Success 200 {object} utils.APIResponse{data=[]discovery.DiscoveredModule} "Scan completed"
// @Failure 404 {object} utils.APIResponse "Scanner type not found"
// @Router /discovery/scan/{type} [post]
func (h *DiscoveryHandler) ScanByType(c *gin.Context) {
	scannerType := c.Param("type")

	modules, err := h.discoveryService.ScanByType(c.Request.Context(), scannerType)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Scanner failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Discovery scan completed", gin.H{
		"modules": modules,
		"count":   len(modules),
	})
}

// ListScanners returns the scanner types usable on this host
// @Summary List available scanners
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string} "Scanners listed"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) ListScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Available scanners",
		h.discoveryService.AvailableScanners())
}
