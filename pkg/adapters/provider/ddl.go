package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// typePattern accepts a bare type name plus an optional length or precision
// suffix, e.g. "varchar(255)" or "numeric(10,2)".
var typePattern = regexp.MustCompile(`^([a-z][a-z0-9 ]*?)(\s*\(\s*\d+\s*(,\s*\d+\s*)?\))?$`)

// ValidateColumnSpecs checks requested column names against the identifier
// allow-list and types against the dialect whitelist. Reserved names clash
// with the injected id and created_at columns and are rejected.
func ValidateColumnSpecs(columns []ColumnSpec, allowedTypes map[string]bool) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", apperrors.ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if err := sqlutil.ValidateIdentifier(col.Name); err != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		lower := strings.ToLower(col.Name)
		if lower == "id" || lower == "created_at" {
			return fmt.Errorf("%w: column %q is reserved", apperrors.ErrInvalidRequest, col.Name)
		}
		if _, dup := seen[lower]; dup {
			return fmt.Errorf("%w: duplicate column %q", apperrors.ErrInvalidRequest, col.Name)
		}
		seen[lower] = struct{}{}

		m := typePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(col.Type)))
		if m == nil || !allowedTypes[strings.TrimSpace(m[1])] {
			return fmt.Errorf("%w: unsupported column type %q", apperrors.ErrInvalidRequest, col.Type)
		}
	}
	return nil
}

// RenderColumn renders one column definition using the given identifier
// quoting function. Defaults are single-quoted as string literals unless the
// value is numeric, boolean or a bare function call like now().
func RenderColumn(col ColumnSpec, quote func(string) string) string {
	var b strings.Builder
	b.WriteString(quote(col.Name))
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(strings.TrimSpace(col.Type)))
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.IsUnique {
		b.WriteString(" UNIQUE")
	}
	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(renderDefault(col.Default))
	}
	return b.String()
}

var (
	numericDefault  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	functionDefault = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*\(\)$`)
)

func renderDefault(v string) string {
	trimmed := strings.TrimSpace(v)
	lower := strings.ToLower(trimmed)
	if lower == "true" || lower == "false" || lower == "null" ||
		numericDefault.MatchString(trimmed) || functionDefault.MatchString(trimmed) {
		return trimmed
	}
	return "'" + strings.ReplaceAll(trimmed, "'", "''") + "'"
}
