package turso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

// pipelineStub records executed SQL and answers with canned results.
type pipelineStub struct {
	t        *testing.T
	requests []pipelineStmt
	respond  func(stmt pipelineStmt) any
}

func (s *pipelineStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(s.t, "/v2/pipeline", r.URL.Path)
		require.Equal(s.t, "Bearer tok-123", r.Header.Get("Authorization"))

		var req pipelineRequest
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(s.t, req.Requests)
		require.Equal(s.t, "execute", req.Requests[0].Type)

		stmt := *req.Requests[0].Stmt
		s.requests = append(s.requests, stmt)
		json.NewEncoder(w).Encode(s.respond(stmt))
	}
}

func okResult(res stmtResult) any {
	return map[string]any{
		"results": []map[string]any{
			{"type": "ok", "response": map[string]any{"type": "execute", "result": res}},
		},
	}
}

func newTestAdapter(t *testing.T, stub *pipelineStub, readOnly bool) *Adapter {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(&Config{URL: srv.URL, AuthToken: "tok-123", ReadOnly: readOnly}, zap.NewNop())
}

func TestQueryRowsDecodesWireValues(t *testing.T) {
	stub := &pipelineStub{t: t}
	stub.respond = func(stmt pipelineStmt) any {
		if strings.HasPrefix(stmt.SQL, "SELECT COUNT") {
			return okResult(stmtResult{
				Cols: []struct {
					Name     string `json:"name"`
					Decltype string `json:"decltype"`
				}{{Name: "n"}},
				Rows: [][]wireValue{{{Type: "integer", Value: "2"}}},
			})
		}
		return okResult(stmtResult{
			Cols: []struct {
				Name     string `json:"name"`
				Decltype string `json:"decltype"`
			}{{Name: "id"}, {Name: "title"}, {Name: "score"}},
			Rows: [][]wireValue{
				{{Type: "integer", Value: "1"}, {Type: "text", Value: "first"}, {Type: "float", Value: "1.5"}},
				{{Type: "integer", Value: "2"}, {Type: "null"}, {Type: "float", Value: "2.25"}},
			},
		})
	}

	a := newTestAdapter(t, stub, false)
	page, err := a.QueryRows(context.Background(), "posts", provider.RowQuery{Page: 0, Limit: 500})
	require.NoError(t, err)

	assert.Equal(t, int64(2), page.TotalCount)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, int64(1), page.Rows[0]["id"])
	assert.Equal(t, "first", page.Rows[0]["title"])
	assert.Equal(t, 1.5, page.Rows[0]["score"])
	assert.Nil(t, page.Rows[1]["title"])

	// oversized limit clamped, page<1 treated as 1
	assert.Contains(t, stub.requests[1].SQL, "LIMIT 100 OFFSET 0")
}

func TestRunRawQueryReadOnlyGate(t *testing.T) {
	stub := &pipelineStub{t: t}
	stub.respond = func(pipelineStmt) any {
		return okResult(stmtResult{AffectedRows: 1})
	}
	a := newTestAdapter(t, stub, true)

	_, err := a.RunRawQuery(context.Background(), "DELETE FROM posts")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	// rejected before any HTTP traffic
	assert.Empty(t, stub.requests)

	res, err := a.RunRawQuery(context.Background(), "SELECT * FROM posts;")
	require.NoError(t, err)
	assert.NotNil(t, res)
	require.Len(t, stub.requests, 1)
	// trailing semicolon stripped during normalization
	assert.Equal(t, "SELECT * FROM posts", stub.requests[0].SQL)
}

func TestCreateTableDialect(t *testing.T) {
	stub := &pipelineStub{t: t}
	stub.respond = func(pipelineStmt) any { return okResult(stmtResult{}) }
	a := newTestAdapter(t, stub, false)

	ddl, err := a.CreateTable(context.Background(), "subscribers", []provider.ColumnSpec{
		{Name: "email", Type: "text", Nullable: false, IsUnique: true},
	})
	require.NoError(t, err)

	assert.Contains(t, ddl, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, ddl, `"email" TEXT NOT NULL UNIQUE`)
	assert.Contains(t, ddl, `"created_at" TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP`)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, ddl, stub.requests[0].SQL)
}

func TestStatementErrorSurfacesAsQueryFailure(t *testing.T) {
	stub := &pipelineStub{t: t}
	stub.respond = func(pipelineStmt) any {
		return map[string]any{
			"results": []map[string]any{
				{"type": "error", "error": map[string]any{"message": "no such table: ghosts", "code": "SQLITE_ERROR"}},
			},
		}
	}
	a := newTestAdapter(t, stub, false)

	_, err := a.GetSchema(context.Background(), "ghosts")
	require.ErrorIs(t, err, apperrors.ErrQueryFailed)
	assert.Contains(t, err.Error(), "no such table")
}

func TestFromMapNormalizesLibsqlURL(t *testing.T) {
	cfg, err := FromMap(map[string]string{"url": "libsql://db-org.turso.io/", "auth_token": "tok"})
	require.NoError(t, err)
	assert.Equal(t, "https://db-org.turso.io", cfg.URL)

	_, err = FromMap(map[string]string{"url": "https://db-org.turso.io"})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}
