package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction values, one per operation class.
const (
	AuditActionConnect     = "connect"
	AuditActionDisconnect  = "disconnect"
	AuditActionQuery       = "query"
	AuditActionInsert      = "insert"
	AuditActionUpdate      = "update"
	AuditActionDelete      = "delete"
	AuditActionCreateTable = "create_table"
)

// Audit entry outcome.
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditLogEntry is one row in the append-only audit trail. Writing it is
// best-effort: a failed write never affects the operation it describes.
type AuditLogEntry struct {
	ID           uuid.UUID      `json:"id"`
	UserID       string         `json:"user_id"`
	Provider     Provider       `json:"provider"`
	Action       string         `json:"action"`
	TableName    string         `json:"table_name,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
