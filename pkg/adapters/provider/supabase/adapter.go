// Package supabase implements the provider adapter for PostgREST-fronted
// PostgreSQL. Catalog data comes from the OpenAPI document the REST root
// serves; row traffic goes through the table endpoints.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
	sqlutil "github.com/tabledeck/tabledeck-engine/pkg/sql"
)

// Adapter provides PostgREST connectivity.
type Adapter struct {
	config *Config
	http   *http.Client
	logger *zap.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New returns a ready adapter.
func New(cfg *Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Close is a no-op: the adapter holds no persistent connection.
func (a *Adapter) Close() error { return nil }

// TestConnection fetches the REST root, which succeeds only with a valid key.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if _, err := a.do(ctx, restRequest{method: http.MethodGet, path: "/rest/v1/"}); err != nil {
		return err
	}
	return nil
}

// openAPIDoc is the subset of the PostgREST OpenAPI document the adapter
// reads: exposed tables and their column definitions.
type openAPIDoc struct {
	Definitions map[string]struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Format      string `json:"format"`
			Default     any    `json:"default"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	} `json:"definitions"`
}

func (a *Adapter) fetchOpenAPI(ctx context.Context) (*openAPIDoc, error) {
	resp, err := a.do(ctx, restRequest{method: http.MethodGet, path: "/rest/v1/"})
	if err != nil {
		return nil, err
	}
	var doc openAPIDoc
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed OpenAPI document: %s", apperrors.ErrQueryFailed, err)
	}
	return &doc, nil
}

// ListTables lists exposed tables from the OpenAPI document. Row counts use
// an exact-count HEAD probe per table and degrade to 0 on failure. PostgREST
// does not distinguish views from tables in the document, so everything is
// reported as a table.
func (a *Adapter) ListTables(ctx context.Context) ([]provider.TableInfo, error) {
	doc, err := a.fetchOpenAPI(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]provider.TableInfo, 0, len(doc.Definitions))
	for name := range doc.Definitions {
		tables = append(tables, provider.TableInfo{Name: name, Type: "table"})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	for i := range tables {
		resp, err := a.do(ctx, restRequest{
			method: http.MethodHead,
			path:   "/rest/v1/" + url.PathEscape(tables[i].Name),
			query:  "select=*&limit=1",
			prefer: "count=exact",
		})
		if err != nil || resp.total < 0 {
			if err != nil {
				a.logger.Debug("row count failed",
					zap.String("table", tables[i].Name),
					zap.String("error", logging.SanitizeError(err)))
			}
			continue
		}
		tables[i].RowCount = resp.total
	}
	return tables, nil
}

// GetSchema normalizes the OpenAPI column definitions. PostgREST marks
// primary keys with a "<pk/>" note in the column description and lists
// non-nullable columns under required; the format field carries the
// underlying PostgreSQL type.
func (a *Adapter) GetSchema(ctx context.Context, table string) ([]provider.Column, error) {
	doc, err := a.fetchOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := doc.Definitions[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q not found", apperrors.ErrQueryFailed, table)
	}

	required := make(map[string]bool, len(def.Required))
	for _, name := range def.Required {
		required[name] = true
	}

	columns := make([]provider.Column, 0, len(def.Properties))
	for name, prop := range def.Properties {
		dataType := prop.Format
		if dataType == "" {
			dataType = prop.Type
		}
		col := provider.Column{
			ColumnName:   name,
			DataType:     dataType,
			IsNullable:   !required[name],
			IsPrimaryKey: strings.Contains(prop.Description, "<pk/>"),
		}
		if prop.Default != nil {
			col.ColumnDefault = fmt.Sprintf("%v", prop.Default)
		}
		columns = append(columns, col)
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].ColumnName < columns[j].ColumnName })
	return columns, nil
}

// QueryRows pages through a table with an exact count. Search builds a
// PostgREST or=() filter of ilike matches over text columns.
func (a *Adapter) QueryRows(ctx context.Context, table string, query provider.RowQuery) (*provider.RowPage, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	q := query.Normalize()

	params := url.Values{}
	params.Set("select", "*")
	params.Set("limit", fmt.Sprintf("%d", q.Limit))
	params.Set("offset", fmt.Sprintf("%d", q.Offset()))

	if q.SortBy != "" {
		if err := sqlutil.ValidateIdentifier(q.SortBy); err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		dir, err := sqlutil.ValidateSortDirection(q.SortDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
		}
		params.Set("order", q.SortBy+"."+strings.ToLower(dir))
	}

	if q.Search != "" {
		columns, err := a.GetSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		var filters []string
		for _, col := range columns {
			if provider.IsTextType(col.DataType) {
				filters = append(filters, fmt.Sprintf("%s.ilike.%s", col.ColumnName, quoteFilterValue(q.Search)))
			}
		}
		if len(filters) > 0 {
			params.Set("or", "("+strings.Join(filters, ",")+")")
		}
	}

	resp, err := a.do(ctx, restRequest{
		method: http.MethodGet,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  params.Encode(),
		prefer: "count=exact",
	})
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed row payload: %s", apperrors.ErrQueryFailed, err)
	}
	total := resp.total
	if total < 0 {
		total = int64(len(rows))
	}
	return &provider.RowPage{Rows: rows, TotalCount: total}, nil
}

// quoteFilterValue wraps a search term in PostgREST's quoted-string filter
// syntax. Inside the quotes, commas, parens and dots are literal, so terms
// like email addresses survive intact; backslash and quote are escaped so
// user input cannot break out of the string.
func quoteFilterValue(v string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
	return `"*` + escaped + `*"`
}

// InsertRow posts the values and returns the stored representation.
func (a *Adapter) InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	clean := provider.StripGenerated(values)
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: no insertable values", apperrors.ErrInvalidRequest)
	}

	resp, err := a.do(ctx, restRequest{
		method: http.MethodPost,
		path:   "/rest/v1/" + url.PathEscape(table),
		prefer: "return=representation",
		body:   clean,
	})
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(resp.body, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("%w: insert returned no row", apperrors.ErrQueryFailed)
	}
	return rows[0], nil
}

// UpdateRow patches the row with the given id. An empty representation
// means no row matched, which surfaces as a query failure rather than
// silent success.
func (a *Adapter) UpdateRow(ctx context.Context, table string, id any, values map[string]any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	clean := provider.StripGenerated(values)
	if len(clean) == 0 {
		return fmt.Errorf("%w: no updatable values", apperrors.ErrInvalidRequest)
	}

	resp, err := a.do(ctx, restRequest{
		method: http.MethodPatch,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  "id=eq." + url.QueryEscape(fmt.Sprintf("%v", id)),
		prefer: "return=representation",
		body:   clean,
	})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil || len(rows) == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}

// DeleteRow deletes the row with the given id.
func (a *Adapter) DeleteRow(ctx context.Context, table string, id any) error {
	if err := sqlutil.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err)
	}
	resp, err := a.do(ctx, restRequest{
		method: http.MethodDelete,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  "id=eq." + url.QueryEscape(fmt.Sprintf("%v", id)),
		prefer: "return=representation",
	})
	if err != nil {
		return err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil || len(rows) == 0 {
		return fmt.Errorf("%w: no row with the given id", apperrors.ErrQueryFailed)
	}
	return nil
}
