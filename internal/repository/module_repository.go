// internal/repository/module_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lora-config-service/internal/database"
	"lora-config-service/internal/model"
)

// moduleRepository implements ModuleRepository interface
type moduleRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(db *database.DB, logger *zap.Logger) ModuleRepository {
	return &moduleRepository{db: db, logger: logger}
}

const moduleColumns = `id, name, variant, variant_detected, connection_type,
	connection_config, location, status, last_seen, last_config, error_info,
	created_at, updated_at`

// Create creates a new module
func (r *moduleRepository) Create(ctx context.Context, module *model.Module) error {
	query := `
		INSERT INTO modules (
			id, name, variant, variant_detected, connection_type,
			connection_config, location, status, last_config, error_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		module.ID, module.Name, module.Variant, module.VariantDetected,
		module.ConnectionType, module.ConnectionConfig, module.Location,
		module.Status, module.LastConfig, module.ErrorInfo,
	)
	if err != nil {
		r.logger.Error("Failed to create module", zap.Error(err), zap.String("name", module.Name))
		return fmt.Errorf("failed to create module: %w", err)
	}

	r.logger.Info("Module created successfully", zap.String("name", module.Name))
	return nil
}

// GetByID retrieves a module by its UUID
func (r *moduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules WHERE id = $1", moduleColumns)

	module := &model.Module{}
	err := r.scanModule(r.db.QueryRowContext(ctx, query, id), module)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("module not found with id: %s", id)
		}
		r.logger.Error("Failed to get module by ID", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return module, nil
}

// GetByName retrieves a module by its name
func (r *moduleRepository) GetByName(ctx context.Context, name string) (*model.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules WHERE name = $1", moduleColumns)

	module := &model.Module{}
	err := r.scanModule(r.db.QueryRowContext(ctx, query, name), module)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("module not found with name: %s", name)
		}
		r.logger.Error("Failed to get module by name", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return module, nil
}

// Update updates an existing module
func (r *moduleRepository) Update(ctx context.Context, module *model.Module) error {
	query := `
		UPDATE modules SET
			name = $2, variant = $3, variant_detected = $4, connection_type = $5,
			connection_config = $6, location = $7, status = $8, last_seen = $9,
			last_config = $10, error_info = $11, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		module.ID, module.Name, module.Variant, module.VariantDetected,
		module.ConnectionType, module.ConnectionConfig, module.Location,
		module.Status, module.LastSeen, module.LastConfig, module.ErrorInfo,
	)
	if err != nil {
		r.logger.Error("Failed to update module", zap.Error(err), zap.String("name", module.Name))
		return fmt.Errorf("failed to update module: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("module not found with id: %s", module.ID)
	}
	return nil
}

// UpdateStatus updates only the module status
func (r *moduleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ModuleStatus) error {
	query := `UPDATE modules SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		r.logger.Error("Failed to update module status", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to update module status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("module not found with id: %s", id)
	}
	return nil
}

// UpdateLastSeen records when the module last answered a command
func (r *moduleRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `UPDATE modules SET last_seen = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, seenAt); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// Delete removes a module
func (r *moduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete module", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to delete module: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("module not found with id: %s", id)
	}

	r.logger.Info("Module deleted", zap.String("id", id.String()))
	return nil
}

// List retrieves modules with filtering and pagination
func (r *moduleRepository) List(ctx context.Context, filter *ModuleFilter) ([]*model.Module, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.ConnectionType != nil {
		conditions = append(conditions, fmt.Sprintf("connection_type = $%d", argIndex))
		args = append(args, *filter.ConnectionType)
		argIndex++
	}
	if filter.Variant != nil {
		conditions = append(conditions, fmt.Sprintf("variant = $%d", argIndex))
		args = append(args, *filter.Variant)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM modules %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count modules: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM modules %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		moduleColumns, whereClause, argIndex, argIndex+1,
	)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	modules := []*model.Module{}
	for rows.Next() {
		module := &model.Module{}
		if err := r.scanModule(rows, module); err != nil {
			return nil, 0, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, module)
	}
	return modules, total, rows.Err()
}

// ListByStatus retrieves all modules with the given status
func (r *moduleRepository) ListByStatus(ctx context.Context, status model.ModuleStatus) ([]*model.Module, error) {
	modules, _, err := r.List(ctx, &ModuleFilter{Status: &status, Limit: 1000})
	return modules, err
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *moduleRepository) scanModule(row scanner, module *model.Module) error {
	return row.Scan(
		&module.ID, &module.Name, &module.Variant, &module.VariantDetected,
		&module.ConnectionType, &module.ConnectionConfig, &module.Location,
		&module.Status, &module.LastSeen, &module.LastConfig, &module.ErrorInfo,
		&module.CreatedAt, &module.UpdatedAt,
	)
}
