package planetscale

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

// allowedColumnTypes is the DDL type whitelist for the MySQL dialect.
var allowedColumnTypes = map[string]bool{
	"text": true, "varchar": true, "char": true, "mediumtext": true,
	"int": true, "integer": true, "bigint": true, "smallint": true, "tinyint": true,
	"decimal": true, "numeric": true, "float": true, "double": true,
	"boolean": true, "bool": true, "json": true,
	"date": true, "datetime": true, "timestamp": true, "blob": true,
}

// RunRawQuery executes one raw statement, gating writes on the credential
// not being read-only before anything reaches the backend.
func (a *Adapter) RunRawQuery(ctx context.Context, query string) (*provider.RawResult, error) {
	normalized, err := sqlutil.Normalize(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	if !sqlutil.IsReadOnly(normalized) && a.config.ReadOnly {
		return nil, fmt.Errorf("%w: the stored credential is read-only", apperrors.ErrUnauthorized)
	}
	if hit := sqlutil.CheckForInjection(normalized); hit != nil {
		a.logger.Warn("raw query matched injection fingerprint",
			zap.String("fingerprint", hit.Fingerprint))
	}

	start := time.Now()
	if sqlutil.IsReadOnly(normalized) {
		rows, err := a.collectRows(ctx, normalized)
		if err != nil {
			return nil, err
		}
		return &provider.RawResult{
			Rows:            rows,
			RowCount:        len(rows),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	res, err := a.db.ExecContext(ctx, normalized)
	if err != nil {
		return nil, a.translate(err)
	}
	affected, _ := res.RowsAffected()
	return &provider.RawResult{
		Rows:            []map[string]any{},
		RowCount:        int(affected),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// CreateTable synthesizes and executes CREATE TABLE DDL with an
// auto-increment primary key and a creation timestamp injected.
func (a *Adapter) CreateTable(ctx context.Context, table string, columns []provider.ColumnSpec) (string, error) {
	if a.config.ReadOnly {
		return "", fmt.Errorf("%w: the stored credential is read-only", apperrors.ErrUnauthorized)
	}
	ddl, err := buildCreateTable(table, columns)
	if err != nil {
		return "", err
	}
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return "", a.translate(err)
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
		"`id` BIGINT AUTO_INCREMENT PRIMARY KEY",
	}
	for _, col := range columns {
		defs = append(defs, provider.RenderColumn(col, quoteIdent))
	}
	defs = append(defs, "`created_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP")

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(table), strings.Join(defs, ",\n  ")), nil
}
