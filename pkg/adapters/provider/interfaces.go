// Package provider defines the common contract every database backend
// adapter implements, plus the registry the service layer uses to
// materialize adapters from decrypted credentials.
package provider

import "context"

// MaxPageLimit is the hard cap on rows per page. Caller-requested limits are
// clamped here regardless of what the UI asks for, to bound response size
// and remote load.
const MaxPageLimit = 100

// DefaultPageLimit applies when the caller does not specify a limit.
const DefaultPageLimit = 25

// TableInfo describes one table or view in the external store.
// RowCount is best-effort: a failed count degrades to 0, it never fails the
// listing.
type TableInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "table" or "view"
	RowCount int64  `json:"rowCount"`
}

// Column is the normalized schema shape every adapter produces, whatever
// the source catalog looks like (information_schema, PRAGMA table_info, a
// PostgREST OpenAPI document, or a sampled document).
type Column struct {
	ColumnName    string `json:"column_name"`
	DataType      string `json:"data_type"`
	IsNullable    bool   `json:"is_nullable"`
	ColumnDefault string `json:"column_default,omitempty"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
}

// RowQuery is a paginated row request. Page is 1-indexed.
type RowQuery struct {
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Search  string `json:"search,omitempty"`
	SortBy  string `json:"sortBy,omitempty"`
	SortDir string `json:"sortDir,omitempty"`
}

// Normalize clamps the query to safe bounds.
func (q RowQuery) Normalize() RowQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

// Offset returns the row offset for the normalized query.
func (q RowQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// RowPage is one page of rows plus the filtered total.
type RowPage struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int64            `json:"totalCount"`
}

// RawResult holds the outcome of a raw query, with wall-clock execution
// time around the remote call for observability.
type RawResult struct {
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"rowCount"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// ColumnSpec describes one requested column for table creation.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	IsUnique bool   `json:"isUnique"`
	Default  string `json:"default,omitempty"`
}

// Adapter is the uniform capability set over one external backend. A
// provider without native support for an operation returns
// apperrors.ErrNotSupported rather than silently doing nothing.
//
// Adapters are transient: one is materialized per operation from decrypted
// credentials and closed afterwards. No state survives across calls.
type Adapter interface {
	// TestConnection verifies the backend is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// ListTables returns all tables and views with best-effort row counts.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// GetSchema returns the normalized column list for a table.
	GetSchema(ctx context.Context, table string) ([]Column, error)

	// QueryRows returns one page of rows with a filtered total count.
	QueryRows(ctx context.Context, table string, query RowQuery) (*RowPage, error)

	// InsertRow inserts values and returns the created row (or at least its
	// generated id). Caller-supplied primary key and created_at fields are
	// stripped first.
	InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error)

	// UpdateRow updates the row with the given id. created_at is stripped
	// from the payload.
	UpdateRow(ctx context.Context, table string, id any, values map[string]any) error

	// DeleteRow deletes the row with the given id.
	DeleteRow(ctx context.Context, table string, id any) error

	// RunRawQuery executes one raw statement. Write-class statements
	// require the elevated credential.
	RunRawQuery(ctx context.Context, query string) (*RawResult, error)

	// CreateTable synthesizes and executes dialect-appropriate DDL,
	// injecting a primary key and a creation timestamp, and returns the SQL
	// that was executed.
	CreateTable(ctx context.Context, table string, columns []ColumnSpec) (string, error)

	// Close releases the transient connection.
	Close() error
}
