// Package turso implements the provider adapter for edge SQLite databases
// reached over the HTTP pipeline protocol.
package turso

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// Adapter provides edge SQLite connectivity. Each call is one HTTP round
// trip; there is no connection to hold open, so Close is a no-op.
type Adapter struct {
	config *Config
	client *client
	logger *zap.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New returns a ready adapter. newHTTPClient is overridable in tests.
func New(cfg *Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		config: cfg,
		client: &client{
			baseURL:   cfg.URL,
			authToken: cfg.AuthToken,
			http:      &http.Client{Timeout: 30 * time.Second},
		},
		logger: logger,
	}
}

// Close is a no-op: the adapter holds no persistent connection.
func (a *Adapter) Close() error { return nil }

// TestConnection runs a trivial statement through the pipeline.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if _, err := a.client.execute(ctx, "SELECT 1", nil); err != nil {
		return err
	}
	return nil
}

// ListTables lists user tables and views from sqlite_master, skipping the
// sqlite_ internal namespace. Row counts degrade to 0 on failure.
func (a *Adapter) ListTables(ctx context.Context) ([]provider.TableInfo, error) {
	res, err := a.client.execute(ctx,
		"SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name", nil)
	if err != nil {
		return nil, err
	}

	tables := make([]provider.TableInfo, 0, len(res.Rows))
	for _, row := range rowMaps(res) {
		name, _ := row["name"].(string)
		typ, _ := row["type"].(string)
		if name == "" {
			continue
		}
		tables = append(tables, provider.TableInfo{Name: name, Type: typ})
	}

	for i := range tables {
		countRes, err := a.client.execute(ctx,
			fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", quoteIdent(tables[i].Name)), nil)
		if err != nil {
			a.logger.Debug("row count failed",
				zap.String("table", tables[i].Name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		if rows := rowMaps(countRes); len(rows) == 1 {
			if n, ok := rows[0]["n"].(int64); ok {
				tables[i].RowCount = n
			}
		}
	}
	return tables, nil
}

// GetSchema reads PRAGMA table_info. PRAGMA takes no bound parameters, so
// the table name is validated against the identifier allow-list and quoted
// before interpolation.
func (a *Adapter) GetSchema(ctx context.Context, table string) ([]provider.Column, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}

	res, err := a.client.execute(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)), nil)
	if err != nil {
		return nil, err
	}

	columns := make([]provider.Column, 0, len(res.Rows))
	for _, row := range rowMaps(res) {
		name, _ := row["name"].(string)
		dataType, _ := row["type"].(string)
		notNull, _ := row["notnull"].(int64)
		pk, _ := row["pk"].(int64)
		col := provider.Column{
			ColumnName:   name,
			DataType:     strings.ToLower(dataType),
			IsNullable:   notNull == 0,
			IsPrimaryKey: pk > 0,
		}
		if dflt, ok := row["dflt_value"].(string); ok {
			col.ColumnDefault = dflt
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table %q not found", apperrors.ErrQueryFailed, table)
	}
	return columns, nil
}

// QueryRows pages through a table. SQLite LIKE is case-insensitive for
// ASCII, which covers the substring search contract.
func (a *Adapter) QueryRows(ctx context.Context, table string, query provider.RowQuery) (*provider.RowPage, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	q := query.Normalize()

	where := ""
	var args []any
	if q.Search != "" {
		columns, err := a.GetSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		var conditions []string
		for _, col := range columns {
			if provider.IsTextType(col.DataType) {
				conditions = append(conditions, fmt.Sprintf("%s LIKE ?", quoteIdent(col.ColumnName)))
				args = append(args, "%"+q.Search+"%")
			}
		}
		if len(conditions) > 0 {
			where = " WHERE " + strings.Join(conditions, " OR ")
		}
	}

	orderBy := ""
	if q.SortBy != "" {
		if err := sqlutil.ValidateIdentifier(q.SortBy); err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		dir, err := sqlutil.ValidateSortDirection(q.SortDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		orderBy = fmt.Sprintf(" ORDER BY %s %s", quoteIdent(q.SortBy), dir)
	}

	countRes, err := a.client.execute(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS n FROM %s%s", quoteIdent(table), where), args)
	if err != nil {
		return nil, err
	}
	var total int64
	if rows := rowMaps(countRes); len(rows) == 1 {
		total, _ = rows[0]["n"].(int64)
	}

	pageRes, err := a.client.execute(ctx,
		fmt.Sprintf("SELECT * FROM %s%s%s LIMIT %d OFFSET %d",
			quoteIdent(table), where, orderBy, q.Limit, q.Offset()), args)
	if err != nil {
		return nil, err
	}
	return &provider.RowPage{Rows: rowMaps(pageRes), TotalCount: total}, nil
}

// InsertRow inserts values and returns the stored row via RETURNING, which
// modern SQLite supports.
func (a *Adapter) InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	clean := provider.StripGenerated(values)
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: no insertable values", apperrors.ErrInvalidRequest)
	}

	names := make([]string, 0, len(clean))
	for name := range clean {
		if err := sqlutil.ValidateIdentifier(name); err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = quoteIdent(name)
		placeholders[i] = "?"
		args[i] = clean[name]
	}

	res, err := a.client.execute(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			quoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args)
	if err != nil {
		return nil, err
	}
	rows := rowMaps(res)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: insert returned no row", apperrors.ErrQueryFailed)
	}
	return rows[0], nil
}

// UpdateRow updates the row with the given id.
func (a *Adapter) UpdateRow(ctx context.Context, table string, id any, values map[string]any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	clean := provider.StripGenerated(values)
	if len(clean) == 0 {
		return fmt.Errorf("%w: no updatable values", apperrors.ErrInvalidRequest)
	}

	names := make([]string, 0, len(clean))
	for name := range clean {
		if err := sqlutil.ValidateIdentifier(name); err != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		assignments[i] = fmt.Sprintf("%s = ?", quoteIdent(name))
		args = append(args, clean[name])
	}
	args = append(args, id)

	res, err := a.client.execute(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE \"id\" = ?",
			quoteIdent(table), strings.Join(assignments, ", ")), args)
	if err != nil {
		return err
	}
	if res.AffectedRows == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}

// DeleteRow deletes the row with the given id.
func (a *Adapter) DeleteRow(ctx context.Context, table string, id any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	res, err := a.client.execute(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE \"id\" = ?", quoteIdent(table)), []any{id})
	if err != nil {
		return err
	}
	if res.AffectedRows == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}

// quoteIdent double-quotes an identifier, which SQLite accepts.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
