// Package planetscale implements the provider adapter for PlanetScale and
// other MySQL-compatible backends through database/sql.
package planetscale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// Adapter provides MySQL connectivity over a transient connection. One
// adapter serves one operation and is closed afterwards.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New opens the database handle. database/sql dials lazily, so reachability
// is only proven by TestConnection or the first operation.
func New(cfg *Config, logger *zap.Logger) (*Adapter, error) {
	connector, err := mysql.NewConnector(cfg.driverConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConfiguration, logging.SanitizeError(err))
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	return &Adapter{config: cfg, db: db, logger: logger}, nil
}

// Close releases the handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// TestConnection verifies the backend is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	var one int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	return nil
}

// ListTables returns all tables and views in the configured database with
// best-effort row counts.
func (a *Adapter) ListTables(ctx context.Context) ([]provider.TableInfo, error) {
	const query = `
		SELECT table_name,
		       CASE table_type WHEN 'VIEW' THEN 'view' ELSE 'table' END
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name
	`

	rows, err := a.db.QueryContext(ctx, query)
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
		var count int64
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tables[i].Name))
		if err := a.db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
			a.logger.Debug("row count failed",
				zap.String("table", tables[i].Name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		tables[i].RowCount = count
	}
	return tables, nil
}

// GetSchema returns the normalized column list from information_schema.
func (a *Adapter) GetSchema(ctx context.Context, table string) ([]provider.Column, error) {
	const query = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       COALESCE(column_default, ''),
		       column_key = 'PRI'
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, table)
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

// quoteIdent backtick-quotes an identifier after allow-list validation.
func quoteIdent(name string) string {
	return "`" + name + "`"
}

func (a *Adapter) translate(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// 1142/1143: command or column access denied for the credential
		if myErr.Number == 1142 || myErr.Number == 1143 || myErr.Number == 1227 {
			return fmt.Errorf("%w: %s (the stored credential may lack write access; reconnect with an elevated role)",
				apperrors.ErrQueryFailed, myErr.Message)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, myErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: operation timed out", apperrors.ErrConnectionFailed)
	}
	return fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, logging.SanitizeError(err))
}
