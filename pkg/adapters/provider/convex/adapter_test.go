package convex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{DeploymentURL: srv.URL, AccessToken: "tok"}, zap.NewNop())
}

func TestListTablesHidesSystemTables(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"tables": []map[string]any{
				{"name": "tasks", "count": 7},
				{"name": "_scheduled_jobs", "count": 3},
				{"name": "users", "count": 2},
			},
		})
	})

	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, provider.TableInfo{Name: "tasks", Type: "table", RowCount: 7}, tables[0])
	assert.Equal(t, provider.TableInfo{Name: "users", Type: "table", RowCount: 2}, tables[1])
}

func TestGetSchemaInfersFromSample(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/tasks/documents", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(documentPage{
			Documents: []map[string]any{{
				"_id": "k57...", "title": "ship it", "done": false, "priority": float64(2),
				"meta": map[string]any{"tags": []any{"a"}},
			}},
			Total: 7,
		})
	})

	columns, err := a.GetSchema(context.Background(), "tasks")
	require.NoError(t, err)
	require.Len(t, columns, 5)

	assert.Equal(t, provider.Column{ColumnName: "_id", DataType: "text", IsPrimaryKey: true}, columns[0])
	byName := make(map[string]string)
	for _, col := range columns[1:] {
		byName[col.ColumnName] = col.DataType
		assert.True(t, col.IsNullable)
	}
	assert.Equal(t, "boolean", byName["done"])
	assert.Equal(t, "integer", byName["priority"])
	assert.Equal(t, "json", byName["meta"])
	assert.Equal(t, "text", byName["title"])
}

func TestGetSchemaEmptyTable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(documentPage{Documents: nil, Total: 0})
	})

	columns, err := a.GetSchema(context.Background(), "empty")
	require.NoError(t, err)
	require.Len(t, columns, 1)
	assert.Equal(t, "_id", columns[0].ColumnName)
}

func TestInsertStripsNativeFields(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "_id")
		assert.NotContains(t, body, "_creationTime")
		assert.NotContains(t, body, "id")
		body["_id"] = "k99"
		json.NewEncoder(w).Encode(body)
	})

	doc, err := a.InsertRow(context.Background(), "tasks", map[string]any{
		"_id": "spoofed", "_creationTime": 1, "id": "also-spoofed", "title": "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "k99", doc["_id"])
	assert.Equal(t, "hello", doc["title"])
}

func TestSQLSurfaceNotSupported(t *testing.T) {
	a := New(&Config{DeploymentURL: "https://x.convex.cloud", AccessToken: "tok"}, zap.NewNop())

	_, err := a.RunRawQuery(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
	_, err = a.CreateTable(context.Background(), "t", nil)
	require.ErrorIs(t, err, apperrors.ErrNotSupported)
}

func TestExpiredTokenIsActionable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := a.TestConnection(context.Background())
	require.ErrorIs(t, err, apperrors.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "re-authorize")
}
