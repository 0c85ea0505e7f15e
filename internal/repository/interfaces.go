// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lora-config-service/internal/model"
)

// ModuleRepository defines module data access operations
type ModuleRepository interface {
	Create(ctx context.Context, module *model.Module) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Module, error)
	GetByName(ctx context.Context, name string) (*model.Module, error)
	Update(ctx context.Context, module *model.Module) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ModuleStatus) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error

	List(ctx context.Context, filter *ModuleFilter) ([]*model.Module, int, error)
	ListByStatus(ctx context.Context, status model.ModuleStatus) ([]*model.Module, error)
}

// OperationRepository defines operation data access operations
type OperationRepository interface {
	Create(ctx context.Context, operation *model.ModuleOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ModuleOperation, error)
	Update(ctx context.Context, operation *model.ModuleOperation) error
	ListByModule(ctx context.Context, moduleID uuid.UUID, limit int) ([]*model.ModuleOperation, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}

// ModuleFilter represents module listing filters
type ModuleFilter struct {
	Status         *model.ModuleStatus   `json:"status,omitempty"`
	ConnectionType *model.ConnectionType `json:"connection_type,omitempty"`
	Variant        *string               `json:"variant,omitempty"`
	Limit          int                   `json:"limit"`
	Offset         int                   `json:"offset"`
}
