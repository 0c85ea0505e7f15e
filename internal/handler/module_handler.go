// internal/handler/module_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lora-config-service/internal/model"
	"lora-config-service/internal/repository"
	"lora-config-service/internal/service"
	"lora-config-service/internal/utils"
)

// ModuleHandler handles module-related HTTP requests
type ModuleHandler struct {
	moduleService *service.ModuleService
	logger        *zap.Logger
}

// NewModuleHandler creates a new module handler
func NewModuleHandler(moduleService *service.ModuleService, logger *zap.Logger) *ModuleHandler {
	return &ModuleHandler{
		moduleService: moduleService,
		logger:        logger.With(zap.String("handler", "module")),
	}
}

// RegisterRoutes registers module-related routes
func (h *ModuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	modules := router.Group("/modules")
	{
		modules.POST("", h.RegisterModule)
		modules.GET("", h.ListModules)

		moduleRoutes := modules.Group("/:id")
		{
			moduleRoutes.GET("", h.GetModule)
			moduleRoutes.DELETE("", h.DeleteModule)
			moduleRoutes.POST("/connect", h.ConnectModule)
			moduleRoutes.POST("/disconnect", h.DisconnectModule)
			moduleRoutes.POST("/ping", h.PingModule)
			moduleRoutes.GET("/config", h.ReadConfig)
			moduleRoutes.PUT("/config", h.WriteConfig)
			moduleRoutes.PUT("/key", h.WriteKey)
			moduleRoutes.GET("/rssi", h.QueryRSSI)
			moduleRoutes.GET("/info", h.ProductInfo)
			moduleRoutes.GET("/operations", h.ListOperations)
		}
	}
}

// RegisterModule registers a new radio module
// @Summary Register a new module
// @Description Register a radio module with its variant and attachment details
// @Tags Modules
// @Accept json
// @Produce json
// @Param request body service.RegisterModuleRequest true "Module registration request"
// @Success 201 {object} utils.APIResponse{data=model.Module} "Module registered successfully"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /modules [post]
func (h *ModuleHandler) RegisterModule(c *gin.Context) {
	var req service.RegisterModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	module, err := h.moduleService.RegisterModule(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to register module", zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to register module", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Module registered successfully", module)
}

// ListModules lists modules with filtering
// @Summary List modules
// @Description Get registered modules with optional filtering
// @Tags Modules
// @Produce json
// @Param status query string false "Filter by status" Enums(ONLINE, OFFLINE, ERROR, CONNECTING, PASS_THROUGH)
// @Param connection_type query string false "Filter by attachment" Enums(SERIAL, USB, TCP)
// @Param variant query string false "Filter by variant profile"
// @Param limit query int false "Items per page" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} utils.APIResponse{data=object{modules=[]model.Module,total=int}} "Modules retrieved"
// @Router /modules [get]
func (h *ModuleHandler) ListModules(c *gin.Context) {
	filter := &repository.ModuleFilter{}

	if status := c.Query("status"); status != "" {
		s := model.ModuleStatus(status)
		filter.Status = &s
	}
	if connType := c.Query("connection_type"); connType != "" {
		ct := model.ConnectionType(connType)
		filter.ConnectionType = &ct
	}
	if variant := c.Query("variant"); variant != "" {
		filter.Variant = &variant
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	modules, total, err := h.moduleService.ListModules(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list modules", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list modules", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Modules retrieved successfully", gin.H{
		"modules": modules,
		"total":   total,
	})
}

// GetModule retrieves a module by ID
// @Summary Get module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse{data=model.Module} "Module retrieved"
// @Failure 404 {object} utils.APIResponse "Module not found"
// @Router /modules/{id} [get]
func (h *ModuleHandler) GetModule(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	module, err := h.moduleService.GetModule(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Module not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Module retrieved successfully", module)
}

// DeleteModule removes a module
// @Summary Delete module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse "Module deleted"
// @Router /modules/{id} [delete]
func (h *ModuleHandler) DeleteModule(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.moduleService.DeleteModule(c.Request.Context(), id); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to delete module", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Module deleted successfully", nil)
}

// ConnectModule opens a configuration session to a module
// @Summary Connect module
// @Description Open the transport, probe the variant and hold the session open
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse{data=model.Module} "Module connected"
// @Failure 409 {object} utils.APIResponse "Module in pass-through mode"
// @Failure 504 {object} utils.APIResponse "Module not answering"
// @Router /modules/{id}/connect [post]
func (h *ModuleHandler) ConnectModule(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	module, err := h.moduleService.ConnectModule(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to connect module", zap.String("id", id.String()), zap.Error(err))
		utils.ProtocolErrorResponse(c, "Failed to connect module", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Module connected successfully", module)
}

// DisconnectModule closes a module's session
// @Summary Disconnect module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse "Module disconnected"
// @Router /modules/{id}/disconnect [post]
func (h *ModuleHandler) DisconnectModule(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.moduleService.DisconnectModule(c.Request.Context(), id); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect module", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Module disconnected successfully", nil)
}

// PingModule verifies a connected module still answers
// @Summary Ping module
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse "Module answered"
// @Failure 504 {object} utils.APIResponse "Module not answering"
// @Router /modules/{id}/ping [post]
func (h *ModuleHandler) PingModule(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.moduleService.PingModule(c.Request.Context(), id); err != nil {
		utils.ProtocolErrorResponse(c, "Module did not answer", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Module answered", nil)
}

// ReadConfig reads the module's current configuration
// @Summary Read module configuration
// @Description Read all configuration registers and render them in physical units
// @Tags Configuration
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse{data=model.ConfigResponse} "Configuration read"
// @Failure 409 {object} utils.APIResponse "Module in pass-through mode"
// @Failure 504 {object} utils.APIResponse "Module not answering"
// @Router /modules/{id}/config [get]
func (h *ModuleHandler) ReadConfig(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	cfg, err := h.moduleService.ReadConfig(c.Request.Context(), id)
	if err != nil {
		utils.ProtocolErrorResponse(c, "Failed to read configuration", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Configuration read successfully", cfg)
}

// WriteConfig writes and verifies a module configuration
// @Summary Write module configuration
// @Description Validate, write and read back the configuration; the response carries what the module actually holds
// @Tags Configuration
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param request body model.ConfigRequest true "Configuration to write"
// @Success 200 {object} utils.APIResponse{data=model.ConfigResponse} "Configuration written and verified"
// @Failure 400 {object} utils.APIResponse "Value not representable on this variant"
// @Failure 409 {object} utils.APIResponse "Read-back disagrees with what was written"
// @Router /modules/{id}/config [put]
func (h *ModuleHandler) WriteConfig(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req model.ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := h.moduleService.WriteConfig(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Error("Failed to write configuration", zap.String("id", id.String()), zap.Error(err))
		utils.ProtocolErrorResponse(c, "Failed to write configuration", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Configuration written successfully", cfg)
}

// WriteKeyRequest is the payload for writing an encryption key
type WriteKeyRequest struct {
	Key  uint16 `json:"key"`
	Save bool   `json:"save"`
}

// WriteKey writes the module's encryption key
// @Summary Write encryption key
// @Description Write the key registers. The key always reads back as zero, so no verification is possible.
// @Tags Configuration
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param request body WriteKeyRequest true "Key to write"
// @Success 200 {object} utils.APIResponse "Key written"
// @Router /modules/{id}/key [put]
func (h *ModuleHandler) WriteKey(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req WriteKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.moduleService.WriteKey(c.Request.Context(), id, req.Key, req.Save); err != nil {
		utils.ProtocolErrorResponse(c, "Failed to write key", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Key written successfully", nil)
}

// QueryRSSI reads the module's signal level registers
// @Summary Query RSSI
// @Description Read ambient noise and last-receive signal levels in dBm
// @Tags Configuration
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse{data=model.RSSIReport} "RSSI read"
// @Failure 501 {object} utils.APIResponse "Firmware does not implement the probe"
// @Router /modules/{id}/rssi [get]
func (h *ModuleHandler) QueryRSSI(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	report, err := h.moduleService.QueryRSSI(c.Request.Context(), id)
	if err != nil {
		utils.ProtocolErrorResponse(c, "Failed to query RSSI", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "RSSI read successfully", report)
}

// ProductInfo reads the module's product information block
// @Summary Read product information
// @Tags Configuration
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} utils.APIResponse "Product information read"
// @Failure 501 {object} utils.APIResponse "Firmware does not implement the probe"
// @Router /modules/{id}/info [get]
func (h *ModuleHandler) ProductInfo(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	info, err := h.moduleService.ProductInfo(c.Request.Context(), id)
	if err != nil {
		utils.ProtocolErrorResponse(c, "Failed to read product information", err)
		return
	}

	hex := make([]int, len(info))
	for i, b := range info {
		hex[i] = int(b)
	}
	utils.SuccessResponse(c, http.StatusOK, "Product information read successfully", gin.H{
		"raw": hex,
	})
}

// ListOperations returns a module's operation history
// @Summary List module operations
// @Tags Operations
// @Produce json
// @Param id path string true "Module ID"
// @Param limit query int false "Items to return" default(20)
// @Success 200 {object} utils.APIResponse{data=[]model.ModuleOperation} "Operations retrieved"
// @Router /modules/{id}/operations [get]
func (h *ModuleHandler) ListOperations(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	operations, err := h.moduleService.ListOperations(c.Request.Context(), id, limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list operations", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved successfully", operations)
}

func (h *ModuleHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid module ID", err)
		return uuid.Nil, false
	}
	return id, true
}
