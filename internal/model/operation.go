// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeReadConfig  OperationType = "READ_CONFIG"
	OperationTypeWriteConfig OperationType = "WRITE_CONFIG"
	OperationTypeWriteKey    OperationType = "WRITE_KEY"
	OperationTypeQueryRSSI   OperationType = "QUERY_RSSI"
	OperationTypeProductInfo OperationType = "PRODUCT_INFO"
	OperationTypePing        OperationType = "PING"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "PENDING"
	OperationStatusProcessing OperationStatus = "PROCESSING"
	OperationStatusSuccess    OperationStatus = "SUCCESS"
	OperationStatusFailed     OperationStatus = "FAILED"
	OperationStatusTimeout    OperationStatus = "TIMEOUT"
)

// ModuleOperation represents one configuration operation against a module.
// ErrorKind carries the protocol error classification when the operation
// failed, so the audit trail distinguishes a flaky serial line from a module
// left in pass-through mode.
type ModuleOperation struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ModuleID      uuid.UUID       `json:"module_id" db:"module_id"`
	OperationType OperationType   `json:"operation_type" db:"operation_type"`
	OperationData JSONObject      `json:"operation_data" db:"operation_data"`
	Status        OperationStatus `json:"status" db:"status"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at" db:"completed_at"`
	DurationMs    *int            `json:"duration_ms" db:"duration_ms"`
	ErrorKind     *string         `json:"error_kind" db:"error_kind"`
	ErrorMessage  *string         `json:"error_message" db:"error_message"`
	RetryCount    int             `json:"retry_count" db:"retry_count"`
	Result        JSONObject      `json:"result" db:"result"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// IsCompleted checks if operation reached a terminal state
func (op *ModuleOperation) IsCompleted() bool {
	return op.Status == OperationStatusSuccess ||
		op.Status == OperationStatusFailed ||
		op.Status == OperationStatusTimeout
}
