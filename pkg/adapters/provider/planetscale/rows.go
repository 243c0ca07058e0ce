package planetscale

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// QueryRows returns one page of rows plus the filtered total.
func (a *Adapter) QueryRows(ctx context.Context, table string, query provider.RowQuery) (*provider.RowPage, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	q := query.Normalize()

	where, args, err := a.buildSearchClause(ctx, table, q.Search)
	if err != nil {
		return nil, err
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

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(table), where)
	if err := a.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, a.translate(err)
	}

	pageQuery := fmt.Sprintf("SELECT * FROM %s%s%s LIMIT %d OFFSET %d",
		quoteIdent(table), where, orderBy, q.Limit, q.Offset())
	rows, err := a.collectRows(ctx, pageQuery, args...)
	if err != nil {
		return nil, err
	}
	return &provider.RowPage{Rows: rows, TotalCount: total}, nil
}

// buildSearchClause matches the term against every text column. MySQL LIKE
// is case-insensitive under the default collations.
func (a *Adapter) buildSearchClause(ctx context.Context, table, search string) (string, []any, error) {
	if search == "" {
		return "", nil, nil
	}
	columns, err := a.GetSchema(ctx, table)
	if err != nil {
		return "", nil, err
	}
	var conditions []string
	var args []any
	for _, col := range columns {
		if provider.IsTextType(col.DataType) {
			conditions = append(conditions, fmt.Sprintf("%s LIKE ?", quoteIdent(col.ColumnName)))
			args = append(args, "%"+search+"%")
		}
	}
	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " OR "), args, nil
}

// collectRows scans a result set into generic maps, decoding []byte cells to
// strings so JSON marshaling does not base64 them.
func (a *Adapter) collectRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, a.translate(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// InsertRow inserts values and returns the generated id. MySQL has no
// RETURNING, so the caller gets the auto-increment id rather than the row.
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

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, a.translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return map[string]any{}, nil
	}
	return map[string]any{"id": id}, nil
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

	query := fmt.Sprintf("UPDATE %s SET %s WHERE `id` = ?",
		quoteIdent(table), strings.Join(assignments, ", "))
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return a.translate(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}

// DeleteRow deletes the row with the given id.
func (a *Adapter) DeleteRow(ctx context.Context, table string, id any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE `id` = ?", quoteIdent(table))
	res, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return a.translate(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}
