package neon

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// QueryRows returns one page of rows plus the filtered total. Search is a
// case-insensitive substring match over text-typed columns only; a table
// with no text columns returns unfiltered results rather than an error.
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
	if err := a.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
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

// buildSearchClause returns a WHERE clause matching search against every
// text column, with the term bound as a parameter.
func (a *Adapter) buildSearchClause(ctx context.Context, table, search string) (string, []any, error) {
	if search == "" {
		return "", nil, nil
	}

	columns, err := a.GetSchema(ctx, table)
	if err != nil {
		return "", nil, err
	}
	where, ok := searchPredicate(columns)
	if !ok {
		return "", nil, nil
	}
	return where, []any{"%" + search + "%"}, nil
}

// searchPredicate builds the OR-joined ILIKE predicate over the table's text
// columns. uuid, enum and other non-text columns are left out; ILIKE is not
// defined for them and one bad operand would fail the whole page.
func searchPredicate(columns []provider.Column) (string, bool) {
	var conditions []string
	for _, col := range columns {
		if provider.IsTextType(col.DataType) {
			conditions = append(conditions, fmt.Sprintf("%s ILIKE $1", quoteIdent(col.ColumnName)))
		}
	}
	if len(conditions) == 0 {
		return "", false
	}
	return " WHERE " + strings.Join(conditions, " OR "), true
}

func (a *Adapter) collectRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := a.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, a.translate(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, a.translate(err)
	}
	return out, nil
}

// InsertRow inserts values and returns the created row via RETURNING *.
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
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = clean[name]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	rows, err := a.collectRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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
		assignments[i] = fmt.Sprintf("%s = $%d", quoteIdent(name), i+1)
		args = append(args, clean[name])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		quoteIdent(table), strings.Join(assignments, ", "), len(args))
	tag, err := a.conn.Exec(ctx, query, args...)
	if err != nil {
		return a.translate(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}

// DeleteRow deletes the row with the given id.
func (a *Adapter) DeleteRow(ctx context.Context, table string, id any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdent(table))
	tag, err := a.conn.Exec(ctx, query, id)
	if err != nil {
		return a.translate(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}
