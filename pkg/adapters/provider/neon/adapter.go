// Package neon implements the provider adapter for Neon and other direct-SQL
// PostgreSQL backends, speaking the wire protocol through pgx.
package neon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// Adapter provides PostgreSQL connectivity over a single transient
// connection. One adapter serves one operation and is closed afterwards.
type Adapter struct {
	config *Config
	conn   *pgx.Conn
	logger *zap.Logger
}

// New dials the backend and returns a ready adapter.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	conn, err := pgx.Connect(ctx, cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	return &Adapter{config: cfg, conn: conn, logger: logger}, nil
}

// Close releases the connection.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close(context.Background())
}

// TestConnection verifies the backend is reachable and that we landed on the
// configured database rather than a default one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping failed: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}

	var currentDB string
	if err := a.conn.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("%w: connected to database %q, expected %q",
			apperrors.ErrConnectionFailed, currentDB, a.config.Database)
	}
	return nil
}

// ListTables returns all public tables and views. Row counts are taken with
// COUNT(*) per table; a count failure degrades that table to 0 rather than
// failing the listing.
func (a *Adapter) ListTables(ctx context.Context) ([]provider.TableInfo, error) {
	const query = `
		SELECT table_name,
		       CASE table_type WHEN 'VIEW' THEN 'view' ELSE 'table' END
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`

	rows, err := a.conn.Query(ctx, query)
	if err != nil {
		return nil, a.translate(err)
	}
	defer rows.Close()

	tables := make([]provider.TableInfo, 0)
	for rows.Next() {
		var t provider.TableInfo
		if err := rows.Scan(&t.Name, &t.Type); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, a.translate(err)
	}

	for i := range tables {
		count, err := a.countRows(ctx, tables[i].Name)
		if err != nil {
			a.logger.Debug("row count failed",
				zap.String("table", tables[i].Name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		tables[i].RowCount = count
	}
	return tables, nil
}

func (a *Adapter) countRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := a.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetSchema returns the normalized column list from information_schema,
// with primary keys detected through pg_index so keys created as unique
// indexes by ORMs are still recognized.
func (a *Adapter) GetSchema(ctx context.Context, table string) ([]provider.Column, error) {
	const query = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       COALESCE(c.column_default, ''),
		       COALESCE(pk.is_primary, false)
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_primary
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE i.indrelid = $1::regclass AND i.indisprimary
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := a.conn.Query(ctx, query, table)
	if err != nil {
		return nil, a.translate(err)
	}
	defer rows.Close()

	columns := make([]provider.Column, 0)
	for rows.Next() {
		var col provider.Column
		if err := rows.Scan(&col.ColumnName, &col.DataType, &col.IsNullable, &col.ColumnDefault, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, a.translate(err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %q not found", apperrors.ErrQueryFailed, table)
	}
	return columns, nil
}

// quoteIdent double-quotes an identifier after allow-list validation has run.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// translate maps a pgx error into the shared taxonomy with a message safe to
// surface. Row-level security denials get an actionable hint because they
// are the most common confusion for hosted Postgres users.
func (a *Adapter) translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42501" || strings.Contains(pgErr.Message, "row-level security") {
			return fmt.Errorf("%w: %s (the stored credential may lack write access; reconnect with an elevated role)",
				apperrors.ErrQueryFailed, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: operation timed out", apperrors.ErrConnectionFailed)
	}
	return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, logging.SanitizeError(err))
}

var _ provider.Adapter = (*Adapter)(nil)
