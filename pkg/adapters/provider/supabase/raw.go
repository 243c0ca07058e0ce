package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// allowedColumnTypes is the DDL type whitelist, identical to the direct
// PostgreSQL dialect since PostgREST fronts the same engine.
var allowedColumnTypes = map[string]bool{
	"text": true, "varchar": true, "character varying": true,
	"integer": true, "int": true, "bigint": true, "smallint": true,
	"numeric": true, "decimal": true, "real": true, "double precision": true,
	"boolean": true, "uuid": true, "jsonb": true, "json": true,
	"date": true, "timestamp": true, "timestamptz": true,
	"timestamp with time zone": true, "bytea": true,
}

// execSQL calls the exec_sql helper function through the RPC endpoint. The
// function must exist in the project; a missing function gets an actionable
// error instead of a bare 404.
func (a *Adapter) execSQL(ctx context.Context, query string) ([]map[string]any, error) {
	resp, err := a.do(ctx, restRequest{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/exec_sql",
		body:   map[string]string{"query": query},
	})
	if err != nil {
		if strings.Contains(err.Error(), "exec_sql") || strings.Contains(err.Error(), "PGRST202") {
			return nil, fmt.Errorf("%w: the exec_sql helper function is not installed in this project", apperrors.ErrQueryFailed)
		}
		return nil, err
	}

	var rows []map[string]any
	if len(resp.body) > 0 && json.Unmarshal(resp.body, &rows) == nil {
		return rows, nil
	}
	return nil, nil
}

// RunRawQuery executes one raw statement through the exec_sql RPC. Non-read
// statements require the service key; the anon key never reaches the RPC
// for writes.
func (a *Adapter) RunRawQuery(ctx context.Context, query string) (*provider.RawResult, error) {
	normalized, err := sqlutil.Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	if !sqlutil.IsReadOnly(normalized) && !a.config.Elevated() {
		return nil, fmt.Errorf("%w: write statements need the service role key", apperrors.ErrUnauthorized)
	}
	if hit := sqlutil.CheckForInjection(normalized); hit != nil {
		a.logger.Warn("raw query matched injection fingerprint",
			zap.String("fingerprint", hit.Fingerprint))
	}

	start := time.Now()
	rows, err := a.execSQL(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &provider.RawResult{
		Rows:            rows,
		RowCount:        len(rows),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// CreateTable synthesizes PostgreSQL DDL and runs it through exec_sql,
// which requires the service key.
func (a *Adapter) CreateTable(ctx context.Context, table string, columns []provider.ColumnSpec) (string, error) {
	if !a.config.Elevated() {
		return "", fmt.Errorf("%w: table creation needs the service role key", apperrors.ErrUnauthorized)
	}
	ddl, err := buildCreateTable(table, columns)
	if err != nil {
		return "", err
	}
	if _, err := a.execSQL(ctx, ddl); err != nil {
		return "", err
	}
	return ddl, nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildCreateTable(table string, columns []provider.ColumnSpec) (string, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	if err := provider.ValidateColumnSpecs(columns, allowedColumnTypes); err != nil {
		return "", err
	}

	defs := []string{
		`"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`,
	}
	for _, col := range columns {
		defs = append(defs, provider.RenderColumn(col, quoteIdent))
	}
	defs = append(defs, `"created_at" TIMESTAMPTZ NOT NULL DEFAULT now()`)

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(table), strings.Join(defs, ",\n  ")), nil
}
