package provider

import (
	"fmt"
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
)

// generatedFields are server-managed and stripped from every insert and
// update payload so callers cannot override them.
var generatedFields = map[string]struct{}{
	"id":         {},
	"created_at": {},
}

// StripGenerated returns a copy of values without server-managed fields.
// extra names (e.g. a document store's native id field) are stripped too.
func StripGenerated(values map[string]any, extra ...string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if _, skip := generatedFields[strings.ToLower(k)]; skip {
			continue
		}
		out[k] = v
	}
	for _, name := range extra {
		delete(out, name)
	}
	return out
}

// IsTextType reports whether a catalog data type holds searchable text.
// Substring search only touches these columns. uuid and enum columns are
// excluded: Postgres has no ILIKE operator for them, so filtering on one
// would turn a best-effort search into a query error.
func IsTextType(dataType string) bool {
	t := strings.ToLower(dataType)
	for _, marker := range []string{"char", "text", "citext", "clob", "string"} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

// InferDataType maps a sampled value to a coarse normalized type. Used by
// backends without a queryable catalog.
func InferDataType(value any) string {
	switch value.(type) {
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "integer"
	case map[string]any, []any:
		return "json"
	case nil:
		return "text"
	default:
		return "text"
	}
}

// RequireConfig fetches a mandatory config value, mapping absence to a
// configuration error that surfaces as a 400 rather than a provider failure.
func RequireConfig(config map[string]string, key string) (string, error) {
	v, ok := config[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: missing required field %q", apperrors.ErrConfiguration, key)
	}
	return strings.TrimSpace(v), nil
}

// ConfigBool reads an optional boolean flag from a config map.
func ConfigBool(config map[string]string, key string) bool {
	v := strings.ToLower(strings.TrimSpace(config[key]))
	return v == "true" || v == "1" || v == "yes"
}
