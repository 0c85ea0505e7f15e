// internal/repository/operation_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lora-config-service/internal/database"
	"lora-config-service/internal/model"
)

// operationRepository implements OperationRepository interface
type operationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *database.DB, logger *zap.Logger) OperationRepository {
	return &operationRepository{db: db, logger: logger}
}

const operationColumns = `id, module_id, operation_type, operation_data, status,
	started_at, completed_at, duration_ms, error_kind, error_message,
	retry_count, result, created_at`

// Create creates a new operation record
func (r *operationRepository) Create(ctx context.Context, operation *model.ModuleOperation) error {
	query := `
		INSERT INTO module_operations (
			id, module_id, operation_type, operation_data, status,
			started_at, retry_count, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.ModuleID, operation.OperationType,
		operation.OperationData, operation.Status, operation.StartedAt,
		operation.RetryCount, operation.Result,
	)
	if err != nil {
		r.logger.Error("Failed to create operation", zap.Error(err),
			zap.String("operation_type", string(operation.OperationType)))
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

// GetByID retrieves an operation by its UUID
func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ModuleOperation, error) {
	query := fmt.Sprintf("SELECT %s FROM module_operations WHERE id = $1", operationColumns)

	operation := &model.ModuleOperation{}
	err := r.scanOperation(r.db.QueryRowContext(ctx, query, id), operation)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("operation not found with id: %s", id)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return operation, nil
}

// Update updates an operation record after completion
func (r *operationRepository) Update(ctx context.Context, operation *model.ModuleOperation) error {
	query := `
		UPDATE module_operations SET
			status = $2, completed_at = $3, duration_ms = $4, error_kind = $5,
			error_message = $6, retry_count = $7, result = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.Status, operation.CompletedAt,
		operation.DurationMs, operation.ErrorKind, operation.ErrorMessage,
		operation.RetryCount, operation.Result,
	)
	if err != nil {
		r.logger.Error("Failed to update operation", zap.Error(err),
			zap.String("id", operation.ID.String()))
		return fmt.Errorf("failed to update operation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("operation not found with id: %s", operation.ID)
	}
	return nil
}

// ListByModule retrieves the most recent operations for a module
func (r *operationRepository) ListByModule(ctx context.Context, moduleID uuid.UUID, limit int) ([]*model.ModuleOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM module_operations WHERE module_id = $1 ORDER BY created_at DESC LIMIT $2",
		operationColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.ModuleOperation{}
	for rows.Next() {
		operation := &model.ModuleOperation{}
		if err := r.scanOperation(rows, operation); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		operations = append(operations, operation)
	}
	return operations, rows.Err()
}

// DeleteOldOperations removes operations older than the given time
func (r *operationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM module_operations WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old operations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if deleted > 0 {
		r.logger.Info("Old operations deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}

func (r *operationRepository) scanOperation(row scanner, operation *model.ModuleOperation) error {
	return row.Scan(
		&operation.ID, &operation.ModuleID, &operation.OperationType,
		&operation.OperationData, &operation.Status, &operation.StartedAt,
		&operation.CompletedAt, &operation.DurationMs, &operation.ErrorKind,
		&operation.ErrorMessage, &operation.RetryCount, &operation.Result,
		&operation.CreatedAt,
	)
}
