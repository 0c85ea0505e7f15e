// internal/service/module_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lora-config-service/internal/config"
	"lora-config-service/internal/driver"
	"lora-config-service/internal/event"
	"lora-config-service/internal/model"
	"lora-config-service/internal/repository"
	"lora-config-service/internal/transport"
	"lora-config-service/pkg/lora"
	"lora-config-service/pkg/lora/session"
)

// ModuleService handles radio module management business logic
type ModuleService struct {
	moduleRepo    repository.ModuleRepository
	operationRepo repository.OperationRepository
	registry      *driver.Registry
	bus           *event.Bus
	config        *config.Config
	logger        *zap.Logger

	driversMu     sync.Mutex
	activeDrivers map[uuid.UUID]driver.ModuleDriver
}

// RegisterModuleRequest is the payload for registering a module
type RegisterModuleRequest struct {
	Name             string                 `json:"name" binding:"required"`
	Variant          string                 `json:"variant" binding:"required"`
	ConnectionType   model.ConnectionType   `json:"connection_type" binding:"required"`
	ConnectionConfig map[string]interface{} `json:"connection_config" binding:"required"`
	Location         *string                `json:"location"`
}

// NewModuleService creates a new module service instance
func NewModuleService(
	moduleRepo repository.ModuleRepository,
	operationRepo repository.OperationRepository,
	registry *driver.Registry,
	bus *event.Bus,
	cfg *config.Config,
	logger *zap.Logger,
) *ModuleService {
	return &ModuleService{
		moduleRepo:    moduleRepo,
		operationRepo: operationRepo,
		registry:      registry,
		bus:           bus,
		config:        cfg,
		logger:        logger.With(zap.String("service", "module")),
		activeDrivers: make(map[uuid.UUID]driver.ModuleDriver),
	}
}

// RegisterModule registers a new module in the system
func (s *ModuleService) RegisterModule(ctx context.Context, req *RegisterModuleRequest) (*model.Module, error) {
	if !s.registry.IsSupported(req.Variant) {
		return nil, fmt.Errorf("unsupported variant: %s", req.Variant)
	}
	if err := transport.ValidateConfig(req.ConnectionType, req.ConnectionConfig); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	if existing, err := s.moduleRepo.GetByName(ctx, req.Name); err == nil && existing != nil {
		return nil, fmt.Errorf("module with name %s already exists", req.Name)
	}

	module := &model.Module{
		ID:               uuid.New(),
		Name:             req.Name,
		Variant:          req.Variant,
		ConnectionType:   req.ConnectionType,
		ConnectionConfig: model.JSONObject(req.ConnectionConfig),
		Location:         req.Location,
		Status:           model.ModuleStatusOffline,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.moduleRepo.Create(ctx, module); err != nil {
		return nil, fmt.Errorf("failed to create module: %w", err)
	}

	s.logger.Info("Module registered",
		zap.String("name", module.Name),
		zap.String("variant", module.Variant),
		zap.String("connection_type", string(module.ConnectionType)),
	)
	return module, nil
}

// GetModule retrieves a module by ID
func (s *ModuleService) GetModule(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	return s.moduleRepo.GetByID(ctx, id)
}

// ListModules retrieves modules with filtering
func (s *ModuleService) ListModules(ctx context.Context, filter *repository.ModuleFilter) ([]*model.Module, int, error) {
	return s.moduleRepo.List(ctx, filter)
}

// DeleteModule disconnects and removes a module
func (s *ModuleService) DeleteModule(ctx context.Context, id uuid.UUID) error {
	s.DisconnectModule(ctx, id)
	return s.moduleRepo.Delete(ctx, id)
}

// ConnectModule opens a configuration session to a module. For binary
// modules this runs variant detection; a detected band is persisted so the
// next session starts from the right profile.
func (s *ModuleService) ConnectModule(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	module, err := s.moduleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("module not found: %w", err)
	}

	s.driversMu.Lock()
	if _, exists := s.activeDrivers[id]; exists {
		s.driversMu.Unlock()
		return module, nil
	}
	s.driversMu.Unlock()

	s.moduleRepo.UpdateStatus(ctx, id, model.ModuleStatusConnecting)

	drv, err := s.registry.CreateDriver(module, s.sessionOptions())
	if err != nil {
		s.moduleRepo.UpdateStatus(ctx, id, model.ModuleStatusError)
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.config.Radio.OperationTimeout)
	defer cancel()
	if err := drv.Connect(connectCtx); err != nil {
		s.setModuleError(ctx, module, err)
		return nil, fmt.Errorf("failed to connect module: %w", err)
	}

	s.driversMu.Lock()
	s.activeDrivers[id] = drv
	s.driversMu.Unlock()

	now := time.Now()
	module.Status = model.ModuleStatusOnline
	module.LastSeen = &now
	module.ErrorInfo = nil
	if drv.VariantDetected() {
		module.Variant = drv.Variant().Name
		module.VariantDetected = true
	}
	if err := s.moduleRepo.Update(ctx, module); err != nil {
		s.logger.Error("Failed to persist module state", zap.Error(err))
	}

	s.publishStatus(module)
	return module, nil
}

// DisconnectModule closes a module's session
func (s *ModuleService) DisconnectModule(ctx context.Context, id uuid.UUID) error {
	s.driversMu.Lock()
	drv, exists := s.activeDrivers[id]
	delete(s.activeDrivers, id)
	s.driversMu.Unlock()

	if !exists {
		return nil
	}
	if err := drv.Disconnect(); err != nil {
		s.logger.Error("Failed to disconnect module", zap.Error(err), zap.String("id", id.String()))
	}

	s.moduleRepo.UpdateStatus(ctx, id, model.ModuleStatusOffline)
	if module, err := s.moduleRepo.GetByID(ctx, id); err == nil {
		s.publishStatus(module)
	}
	return nil
}

// ReadConfig reads the module's current configuration
func (s *ModuleService) ReadConfig(ctx context.Context, id uuid.UUID) (*model.ConfigResponse, error) {
	drv, err := s.getDriver(id)
	if err != nil {
		return nil, err
	}

	var resp *model.ConfigResponse
	err = s.recordOperation(ctx, id, model.OperationTypeReadConfig, nil, func(opCtx context.Context) (model.JSONObject, error) {
		cfg, err := drv.ReadConfig(opCtx)
		if err != nil {
			return nil, err
		}
		resp = blockToResponse(drv.Variant(), cfg)
		return model.JSONObject{"channel": cfg.Channel, "address": cfg.Address}, nil
	})
	if err != nil {
		return nil, err
	}

	s.persistLastConfig(ctx, id, resp)
	return resp, nil
}

// WriteConfig validates, writes and verifies a module configuration
func (s *ModuleService) WriteConfig(ctx context.Context, id uuid.UUID, req *model.ConfigRequest) (*model.ConfigResponse, error) {
	drv, err := s.getDriver(id)
	if err != nil {
		return nil, err
	}

	cfg, err := configRequestToBlock(req)
	if err != nil {
		return nil, err
	}

	var resp *model.ConfigResponse
	opData := model.JSONObject{"channel": req.Channel, "address": req.Address, "save": req.Save}
	err = s.recordOperation(ctx, id, model.OperationTypeWriteConfig, opData, func(opCtx context.Context) (model.JSONObject, error) {
		written, err := drv.WriteConfig(opCtx, cfg, req.Save)
		if err != nil {
			return nil, err
		}
		resp = blockToResponse(drv.Variant(), written)
		return model.JSONObject{"frequency_mhz": resp.FrequencyMHz}, nil
	})
	if err != nil {
		return nil, err
	}

	s.persistLastConfig(ctx, id, resp)
	s.bus.Publish(event.Event{
		Type:   event.TypeConfigWritten,
		Source: id.String(),
		Data: map[string]interface{}{
			"module_id": id.String(),
			"channel":   resp.Channel,
			"frequency": resp.FrequencyMHz,
			"saved":     req.Save,
		},
	})
	return resp, nil
}

// WriteKey writes the module's encryption key. The key is never persisted and
// never readable back.
func (s *ModuleService) WriteKey(ctx context.Context, id uuid.UUID, key uint16, save bool) error {
	drv, err := s.getDriver(id)
	if err != nil {
		return err
	}
	return s.recordOperation(ctx, id, model.OperationTypeWriteKey, model.JSONObject{"save": save},
		func(opCtx context.Context) (model.JSONObject, error) {
			return nil, drv.WriteKey(opCtx, key, save)
		})
}

// QueryRSSI reads the module's signal level registers
func (s *ModuleService) QueryRSSI(ctx context.Context, id uuid.UUID) (*model.RSSIReport, error) {
	drv, err := s.getDriver(id)
	if err != nil {
		return nil, err
	}

	var report *model.RSSIReport
	err = s.recordOperation(ctx, id, model.OperationTypeQueryRSSI, nil, func(opCtx context.Context) (model.JSONObject, error) {
		rssi, err := drv.QueryRSSI(opCtx)
		if err != nil {
			return nil, err
		}
		report = &model.RSSIReport{
			AmbientNoiseDBm: rssi.AmbientNoiseDBm,
			LastReceiveDBm:  rssi.LastReceiveDBm,
		}
		return model.JSONObject{
			"ambient_noise_dbm": rssi.AmbientNoiseDBm,
			"last_receive_dbm":  rssi.LastReceiveDBm,
		}, nil
	})
	return report, err
}

// ProductInfo reads the module's product information block
func (s *ModuleService) ProductInfo(ctx context.Context, id uuid.UUID) ([]byte, error) {
	drv, err := s.getDriver(id)
	if err != nil {
		return nil, err
	}

	var info []byte
	err = s.recordOperation(ctx, id, model.OperationTypeProductInfo, nil, func(opCtx context.Context) (model.JSONObject, error) {
		info, err = drv.ProductInfo(opCtx)
		if err != nil {
			return nil, err
		}
		return model.JSONObject{"raw": fmt.Sprintf("% X", info)}, nil
	})
	return info, err
}

// PingModule verifies a connected module still answers
func (s *ModuleService) PingModule(ctx context.Context, id uuid.UUID) error {
	drv, err := s.getDriver(id)
	if err != nil {
		return err
	}
	return s.recordOperation(ctx, id, model.OperationTypePing, nil,
		func(opCtx context.Context) (model.JSONObject, error) {
			return nil, drv.Ping(opCtx)
		})
}

// ListOperations returns the recent operation history for a module
func (s *ModuleService) ListOperations(ctx context.Context, id uuid.UUID, limit int) ([]*model.ModuleOperation, error) {
	return s.operationRepo.ListByModule(ctx, id, limit)
}

// PingAll pings every connected module, marking the ones that stopped
// answering. Run periodically from the server loop.
func (s *ModuleService) PingAll(ctx context.Context) {
	s.driversMu.Lock()
	ids := make([]uuid.UUID, 0, len(s.activeDrivers))
	for id := range s.activeDrivers {
		ids = append(ids, id)
	}
	s.driversMu.Unlock()

	for _, id := range ids {
		if err := s.PingModule(ctx, id); err != nil {
			s.logger.Warn("Module ping failed", zap.String("id", id.String()), zap.Error(err))
		} else {
			s.moduleRepo.UpdateLastSeen(ctx, id, time.Now())
		}
	}
}

// Shutdown disconnects every active session
func (s *ModuleService) Shutdown(ctx context.Context) {
	s.driversMu.Lock()
	ids := make([]uuid.UUID, 0, len(s.activeDrivers))
	for id := range s.activeDrivers {
		ids = append(ids, id)
	}
	s.driversMu.Unlock()

	for _, id := range ids {
		s.DisconnectModule(ctx, id)
	}
}

func (s *ModuleService) sessionOptions() session.Options {
	return session.Options{
		MaxRetries: s.config.Radio.MaxRetryAttempts,
		RetryDelay: s.config.Radio.RetryDelay,
	}
}

func (s *ModuleService) getDriver(id uuid.UUID) (driver.ModuleDriver, error) {
	s.driversMu.Lock()
	defer s.driversMu.Unlock()

	drv, exists := s.activeDrivers[id]
	if !exists {
		return nil, fmt.Errorf("module %s is not connected", id)
	}
	return drv, nil
}

// recordOperation wraps a driver call with an audit record carrying the
// protocol error kind on failure.
func (s *ModuleService) recordOperation(
	ctx context.Context,
	moduleID uuid.UUID,
	opType model.OperationType,
	opData model.JSONObject,
	fn func(ctx context.Context) (model.JSONObject, error),
) error {
	op := &model.ModuleOperation{
		ID:            uuid.New(),
		ModuleID:      moduleID,
		OperationType: opType,
		OperationData: opData,
		Status:        model.OperationStatusProcessing,
		StartedAt:     time.Now(),
	}
	if err := s.operationRepo.Create(ctx, op); err != nil {
		s.logger.Error("Failed to record operation", zap.Error(err))
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.Radio.OperationTimeout)
	defer cancel()

	result, opErr := fn(opCtx)

	now := time.Now()
	durationMs := int(now.Sub(op.StartedAt).Milliseconds())
	op.CompletedAt = &now
	op.DurationMs = &durationMs
	op.Result = result

	if opErr != nil {
		op.Status = model.OperationStatusFailed
		msg := opErr.Error()
		op.ErrorMessage = &msg
		if kind := lora.KindOf(opErr); kind >= 0 {
			kindStr := kind.String()
			op.ErrorKind = &kindStr
			if kind == lora.KindTimeout {
				op.Status = model.OperationStatusTimeout
			}
		}
		s.handleOperationFailure(ctx, moduleID, opType, opErr)
	} else {
		op.Status = model.OperationStatusSuccess
	}

	if err := s.operationRepo.Update(ctx, op); err != nil {
		s.logger.Error("Failed to update operation record", zap.Error(err))
	}
	return opErr
}

// handleOperationFailure reflects protocol failures into module state. A
// detected echo means the module dropped out of configuration mode; it stays
// flagged until an operator power-cycles it with the mode pins set right.
func (s *ModuleService) handleOperationFailure(ctx context.Context, moduleID uuid.UUID, opType model.OperationType, opErr error) {
	kind := lora.KindOf(opErr)
	switch kind {
	case lora.KindEchoDetected:
		s.moduleRepo.UpdateStatus(ctx, moduleID, model.ModuleStatusPassThrough)
	case lora.KindTimeout, lora.KindPersistenceMismatch:
		s.moduleRepo.UpdateStatus(ctx, moduleID, model.ModuleStatusError)
	default:
		return
	}

	s.bus.Publish(event.Event{
		Type:   event.TypeOperationFailed,
		Source: moduleID.String(),
		Data: map[string]interface{}{
			"module_id":      moduleID.String(),
			"operation_type": string(opType),
			"error_kind":     kind.String(),
			"retryable":      kind.Retryable(),
		},
	})
}

func (s *ModuleService) setModuleError(ctx context.Context, module *model.Module, err error) {
	module.Status = model.ModuleStatusError
	module.ErrorInfo = model.JSONObject{
		"message": err.Error(),
		"time":    time.Now().Format(time.RFC3339),
	}
	if kind := lora.KindOf(err); kind >= 0 {
		module.ErrorInfo["kind"] = kind.String()
		if kind == lora.KindEchoDetected {
			module.Status = model.ModuleStatusPassThrough
		}
	}
	if uerr := s.moduleRepo.Update(ctx, module); uerr != nil {
		s.logger.Error("Failed to persist module error", zap.Error(uerr))
	}
	s.publishStatus(module)
}

func (s *ModuleService) persistLastConfig(ctx context.Context, id uuid.UUID, resp *model.ConfigResponse) {
	module, err := s.moduleRepo.GetByID(ctx, id)
	if err != nil {
		return
	}
	now := time.Now()
	module.LastSeen = &now
	module.LastConfig = model.JSONObject{
		"address":       resp.Address,
		"channel":       resp.Channel,
		"frequency_mhz": resp.FrequencyMHz,
		"air_rate":      resp.AirRate,
		"power_dbm":     resp.PowerDBm,
		"variant":       resp.Variant,
	}
	if err := s.moduleRepo.Update(ctx, module); err != nil {
		s.logger.Error("Failed to persist module config", zap.Error(err))
	}
}

func (s *ModuleService) publishStatus(module *model.Module) {
	s.bus.Publish(event.Event{
		Type:   event.TypeModuleStatus,
		Source: module.ID.String(),
		Data: map[string]interface{}{
			"module_id": module.ID.String(),
			"name":      module.Name,
			"status":    string(module.Status),
			"variant":   module.Variant,
		},
	})
}
