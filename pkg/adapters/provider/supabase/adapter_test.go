package supabase

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

const openAPIFixture = `{
	"definitions": {
		"profiles": {
			"properties": {
				"id": {"type": "string", "format": "uuid", "description": "Note:\nThis is a Primary Key.<pk/>"},
				"username": {"type": "string", "format": "text"},
				"age": {"type": "integer", "format": "bigint"}
			},
			"required": ["id", "username"]
		},
		"events": {
			"properties": {
				"id": {"type": "integer", "format": "bigint", "description": "<pk/>"}
			},
			"required": ["id"]
		}
	}
}`

func newTestAdapter(t *testing.T, handler http.HandlerFunc, serviceKey string) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{URL: srv.URL, AnonKey: "anon-key", ServiceKey: serviceKey}, zap.NewNop())
}

func TestGetSchemaFromOpenAPI(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/", r.URL.Path)
		w.Write([]byte(openAPIFixture))
	}, "")

	columns, err := a.GetSchema(context.Background(), "profiles")
	require.NoError(t, err)
	require.Len(t, columns, 3)

	byName := make(map[string]provider.Column)
	for _, col := range columns {
		byName[col.ColumnName] = col
	}
	assert.True(t, byName["id"].IsPrimaryKey)
	assert.Equal(t, "uuid", byName["id"].DataType)
	assert.False(t, byName["id"].IsNullable)
	assert.Equal(t, "text", byName["username"].DataType)
	assert.False(t, byName["username"].IsNullable)
	assert.True(t, byName["age"].IsNullable)
	assert.False(t, byName["age"].IsPrimaryKey)

	_, err = a.GetSchema(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrQueryFailed)
}

func TestListTablesCountsFromContentRange(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/v1/":
			w.Write([]byte(openAPIFixture))
		case r.Method == http.MethodHead && r.URL.Path == "/rest/v1/profiles":
			require.Contains(t, r.Header.Get("Prefer"), "count=exact")
			w.Header().Set("Content-Range", "0-0/42")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/rest/v1/events":
			// count probe fails; listing must still succeed
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}, "")

	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, provider.TableInfo{Name: "events", Type: "table", RowCount: 0}, tables[0])
	assert.Equal(t, provider.TableInfo{Name: "profiles", Type: "table", RowCount: 42}, tables[1])
}

func TestQueryRowsBuildsSearchFilter(t *testing.T) {
	var pageQuery string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/" {
			w.Write([]byte(openAPIFixture))
			return
		}
		require.Equal(t, "/rest/v1/profiles", r.URL.Path)
		pageQuery = r.URL.RawQuery
		w.Header().Set("Content-Range", "0-1/2")
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "a", "username": "ada"},
			{"id": "b", "username": "adamant"},
		})
	}, "")

	page, err := a.QueryRows(context.Background(), "profiles", provider.RowQuery{
		Page: 2, Limit: 10, Search: "ada", SortBy: "username", SortDir: "desc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalCount)
	assert.Len(t, page.Rows, 2)

	// filter covers text columns only: bigint and uuid stay out of it
	assert.Contains(t, pageQuery, "or=")
	assert.Contains(t, pageQuery, "username.ilike.")
	assert.NotContains(t, pageQuery, "age.ilike.")
	assert.NotContains(t, pageQuery, "id.ilike.")
	assert.Contains(t, pageQuery, "limit=10")
	assert.Contains(t, pageQuery, "offset=10")
	assert.Contains(t, pageQuery, "order=username.desc")
}

func TestSearchFilterPreservesDottedTerms(t *testing.T) {
	var orFilter string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/" {
			w.Write([]byte(openAPIFixture))
			return
		}
		orFilter = r.URL.Query().Get("or")
		w.Header().Set("Content-Range", "0-0/1")
		json.NewEncoder(w).Encode([]map[string]any{{"id": "a", "username": "a.b@x.io"}})
	}, "")

	_, err := a.QueryRows(context.Background(), "profiles", provider.RowQuery{Search: "a.b@x.io"})
	require.NoError(t, err)

	// quoted-string filter syntax keeps dots and commas literal
	assert.Contains(t, orFilter, `username.ilike."*a.b@x.io*"`)
}

func TestWriteGateRequiresServiceKey(t *testing.T) {
	called := false
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := a.RunRawQuery(context.Background(), "DROP TABLE profiles")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = a.CreateTable(context.Background(), "t", []provider.ColumnSpec{{Name: "a", Type: "text"}})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.False(t, called, "gated operations must not reach the backend")
}

func TestRawQueryUsesServiceKey(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/rpc/exec_sql", r.URL.Path)
		require.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SELECT count(*) FROM profiles", body["query"])
		json.NewEncoder(w).Encode([]map[string]any{{"count": 42}})
	}, "service-key")

	res, err := a.RunRawQuery(context.Background(), "SELECT count(*) FROM profiles;")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestUpdateRowMissingID(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "id=eq.9", r.URL.RawQuery)
		w.Write([]byte(`[]`))
	}, "service-key")

	err := a.UpdateRow(context.Background(), "profiles", 9, map[string]any{"username": "x"})
	require.ErrorIs(t, err, apperrors.ErrQueryFailed)
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"0-24/3573", 3573, true},
		{"*/10", 10, true},
		{"0-0/*", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseContentRangeTotal(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		if ok {
			assert.Equal(t, tt.want, got, tt.header)
		}
	}
}
