// Package convex implements the provider adapter for the Convex document
// store through its deployment HTTP API. Documents are schemaless, so the
// schema view is inferred by sampling and raw SQL is not available.
package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// idField is the document store's native primary key.
const idField = "_id"

// Adapter provides document store connectivity.
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

func (a *Adapter) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := a.config.DeploymentURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response: %s", apperrors.ErrQueryFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// expired OAuth tokens land here; there is no refresh path yet, so
		// the user has to go through the authorize flow again
		return nil, resp.StatusCode, fmt.Errorf("%w: access token rejected, re-authorize the integration", apperrors.ErrConnectionFailed)
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, errorMessage(payload, "not found"))
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", apperrors.ErrQueryFailed, errorMessage(payload, resp.Status))
	}
	return payload, resp.StatusCode, nil
}

func errorMessage(payload []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Message != "" {
		return logging.Sanitize(body.Message)
	}
	return fallback
}

// TestConnection lists tables, which succeeds only with a live token.
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, _, err := a.do(ctx, http.MethodGet, "/api/tables", nil, nil)
	return err
}

// ListTables returns every document table with its count. System tables
// (underscore-prefixed) are hidden.
func (a *Adapter) ListTables(ctx context.Context) ([]provider.TableInfo, error) {
	payload, _, err := a.do(ctx, http.MethodGet, "/api/tables", nil, nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Tables []struct {
			Name  string `json:"name"`
			Count int64  `json:"count"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed table listing: %s", apperrors.ErrQueryFailed, err)
	}

	tables := make([]provider.TableInfo, 0, len(decoded.Tables))
	for _, table := range decoded.Tables {
		if strings.HasPrefix(table.Name, "_") {
			continue
		}
		tables = append(tables, provider.TableInfo{Name: table.Name, Type: "table", RowCount: table.Count})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// GetSchema samples one document and infers column types from its fields.
// The store has no catalog, so an empty table yields just the id column.
func (a *Adapter) GetSchema(ctx context.Context, table string) ([]provider.Column, error) {
	page, err := a.fetchDocuments(ctx, table, url.Values{"limit": {"1"}})
	if err != nil {
		return nil, err
	}

	columns := []provider.Column{
		{ColumnName: idField, DataType: "text", IsNullable: false, IsPrimaryKey: true},
	}
	if len(page.Documents) == 0 {
		return columns, nil
	}

	sample := page.Documents[0]
	names := make([]string, 0, len(sample))
	for name := range sample {
		if name != idField {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		columns = append(columns, provider.Column{
			ColumnName: name,
			DataType:   provider.InferDataType(sample[name]),
			IsNullable: true,
		})
	}
	return columns, nil
}

type documentPage struct {
	Documents []map[string]any `json:"documents"`
	Total     int64            `json:"total"`
}

func (a *Adapter) fetchDocuments(ctx context.Context, table string, query url.Values) (*documentPage, error) {
	payload, _, err := a.do(ctx, http.MethodGet, "/api/tables/"+url.PathEscape(table)+"/documents", query, nil)
	if err != nil {
		return nil, err
	}
	var page documentPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("%w: malformed document payload: %s", apperrors.ErrQueryFailed, err)
	}
	return &page, nil
}

// QueryRows pages through documents. Search and sorting are delegated to
// the deployment, which applies the same case-insensitive substring match
// over string fields.
func (a *Adapter) QueryRows(ctx context.Context, table string, query provider.RowQuery) (*provider.RowPage, error) {
	q := query.Normalize()

	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", q.Limit))
	params.Set("offset", fmt.Sprintf("%d", q.Offset()))
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.SortBy != "" {
		dir := strings.ToLower(q.SortDir)
		if dir != "desc" {
			dir = "asc"
		}
		params.Set("sortBy", q.SortBy)
		params.Set("sortDir", dir)
	}

	page, err := a.fetchDocuments(ctx, table, params)
	if err != nil {
		return nil, err
	}
	rows := page.Documents
	if rows == nil {
		rows = []map[string]any{}
	}
	return &provider.RowPage{Rows: rows, TotalCount: page.Total}, nil
}

// InsertRow creates a document and returns the stored version.
func (a *Adapter) InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	clean := provider.StripGenerated(values, idField, "_creationTime")
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: no insertable values", apperrors.ErrInvalidRequest)
	}

	payload, _, err := a.do(ctx, http.MethodPost, "/api/tables/"+url.PathEscape(table)+"/documents", nil, clean)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed document payload: %s", apperrors.ErrQueryFailed, err)
	}
	return doc, nil
}

// UpdateRow patches the document with the given id.
func (a *Adapter) UpdateRow(ctx context.Context, table string, id any, values map[string]any) error {
	clean := provider.StripGenerated(values, idField, "_creationTime")
	if len(clean) == 0 {
		return fmt.Errorf("%w: no updatable values", apperrors.ErrInvalidRequest)
	}
	path := "/api/tables/" + url.PathEscape(table) + "/documents/" + url.PathEscape(fmt.Sprintf("%v", id))
	_, _, err := a.do(ctx, http.MethodPatch, path, nil, clean)
	return err
}

// DeleteRow removes the document with the given id.
func (a *Adapter) DeleteRow(ctx context.Context, table string, id any) error {
	path := "/api/tables/" + url.PathEscape(table) + "/documents/" + url.PathEscape(fmt.Sprintf("%v", id))
	_, _, err := a.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// RunRawQuery is not available: the store has no SQL surface.
func (a *Adapter) RunRawQuery(ctx context.Context, query string) (*provider.RawResult, error) {
	return nil, fmt.Errorf("%w: the document store does not execute SQL", apperrors.ErrNotSupported)
}

// CreateTable is not available: tables appear on first document insert.
func (a *Adapter) CreateTable(ctx context.Context, table string, columns []provider.ColumnSpec) (string, error) {
	return "", fmt.Errorf("%w: tables are created implicitly on first insert", apperrors.ErrNotSupported)
}
