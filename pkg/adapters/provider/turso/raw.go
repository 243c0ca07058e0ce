package turso

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// allowedColumnTypes is the DDL type whitelist for the SQLite dialect.
// SQLite accepts arbitrary type names but the surface exposes its storage
// classes plus common aliases.
var allowedColumnTypes = map[string]bool{
	"text": true, "varchar": true, "char": true,
	"integer": true, "int": true, "bigint": true,
	"real": true, "float": true, "double": true, "numeric": true,
	"boolean": true, "blob": true,
}

// RunRawQuery executes one raw statement, gating writes on the token not
// being read-only before the request is sent.
func (a *Adapter) RunRawQuery(ctx context.Context, query string) (*provider.RawResult, error) {
	normalized, err := sqlutil.Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	readOnly := sqlutil.IsReadOnly(normalized)
	if !readOnly && a.config.ReadOnly {
		return nil, fmt.Errorf("%w: the stored token is read-only", apperrors.ErrUnauthorized)
	}
	if hit := sqlutil.CheckForInjection(normalized); hit != nil {
		a.logger.Warn("raw query matched injection fingerprint",
			zap.String("fingerprint", hit.Fingerprint))
	}

	start := time.Now()
	res, err := a.client.execute(ctx, normalized, nil)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Milliseconds()

	rows := rowMaps(res)
	count := len(rows)
	if !readOnly && count == 0 {
		count = res.AffectedRows
	}
	return &provider.RawResult{
		Rows:            rows,
		RowCount:        count,
		ExecutionTimeMs: elapsed,
	}, nil
}

// CreateTable synthesizes and executes CREATE TABLE DDL with a rowid-backed
// auto-increment primary key and a text creation timestamp injected.
func (a *Adapter) CreateTable(ctx context.Context, table string, columns []provider.ColumnSpec) (string, error) {
	if a.config.ReadOnly {
		return "", fmt.Errorf("%w: the stored token is read-only", apperrors.ErrUnauthorized)
	}
	ddl, err := buildCreateTable(table, columns)
	if err != nil {
		return "", err
	}
	if _, err := a.client.execute(ctx, ddl, nil); err != nil {
		return "", err
	}
	return ddl, nil
}

func buildCreateTable(table string, columns []provider.ColumnSpec) (string, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	if err := provider.ValidateColumnSpecs(columns, allowedColumnTypes); err != nil {
		return "", err
	}

	defs := []string{
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
	}
	for _, col := range columns {
		defs = append(defs, provider.RenderColumn(col, quoteIdent))
	}
	defs = append(defs, `"created_at" TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP`)

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(table), strings.Join(defs, ",\n  ")), nil
}
