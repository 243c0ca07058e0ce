package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/services"
)

// staticValidator accepts the token "good-token" as user-1.
type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*auth.Claims, error) {
	if token != "good-token" {
		return nil, apperrors.ErrUnauthenticated
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}, nil
}

func testAuthMW() *auth.Middleware {
	return auth.NewMiddleware(staticValidator{}, zap.NewNop())
}

// fakeDataService returns canned results and records the last call.
type fakeDataService struct {
	lastUser     string
	lastProvider models.Provider
	lastTable    string
	lastID       any
	err          error
}

func (f *fakeDataService) ListTables(_ context.Context, userID string, p models.Provider) ([]provider.TableInfo, error) {
	f.lastUser, f.lastProvider = userID, p
	return []provider.TableInfo{{Name: "users", Type: "table", RowCount: 3}}, f.err
}
func (f *fakeDataService) GetSchema(_ context.Context, userID string, p models.Provider, table string) ([]provider.Column, error) {
	f.lastUser, f.lastProvider, f.lastTable = userID, p, table
	return []provider.Column{{ColumnName: "id", DataType: "uuid", IsPrimaryKey: true}}, f.err
}
func (f *fakeDataService) QueryRows(_ context.Context, userID string, p models.Provider, table string, q provider.RowQuery) (*provider.RowPage, error) {
	f.lastUser, f.lastProvider, f.lastTable = userID, p, table
	if f.err != nil {
		return nil, f.err
	}
	return &provider.RowPage{Rows: []map[string]any{{"id": 1}}, TotalCount: 1}, nil
}
func (f *fakeDataService) InsertRow(_ context.Context, userID string, p models.Provider, table string, values map[string]any) (map[string]any, error) {
	f.lastUser, f.lastProvider, f.lastTable = userID, p, table
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"id": 7}, nil
}
func (f *fakeDataService) UpdateRow(_ context.Context, userID string, p models.Provider, table string, id any, values map[string]any) error {
	f.lastUser, f.lastProvider, f.lastTable, f.lastID = userID, p, table, id
	return f.err
}
func (f *fakeDataService) DeleteRow(_ context.Context, userID string, p models.Provider, table string, id any) error {
	f.lastUser, f.lastProvider, f.lastTable, f.lastID = userID, p, table, id
	return f.err
}
func (f *fakeDataService) RunRawQuery(_ context.Context, userID string, p models.Provider, query string) (*provider.RawResult, error) {
	f.lastUser, f.lastProvider = userID, p
	if f.err != nil {
		return nil, f.err
	}
	return &provider.RawResult{Rows: []map[string]any{}, RowCount: 0, ExecutionTimeMs: 3}, nil
}
func (f *fakeDataService) CreateTable(_ context.Context, userID string, p models.Provider, table string, columns []provider.ColumnSpec) (string, error) {
	f.lastUser, f.lastProvider, f.lastTable = userID, p, table
	if f.err != nil {
		return "", f.err
	}
	return `CREATE TABLE "t" ()`, nil
}

var _ services.DataService = (*fakeDataService)(nil)

func newDataMux(svc *fakeDataService) *http.ServeMux {
	mux := http.NewServeMux()
	NewDataHandler(svc, testAuthMW(), zap.NewNop(), true).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, map[string]any, map[string]any) {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Success, envelope.Data, envelope.Error
}

func TestListTablesEnvelope(t *testing.T) {
	svc := &fakeDataService{}
	rec := doJSON(t, newDataMux(svc), http.MethodGet, "/api/integrations/neon/tables", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	success, data, _ := decodeEnvelope(t, rec)
	assert.True(t, success)
	assert.Len(t, data["tables"], 1)
	assert.Equal(t, "user-1", svc.lastUser)
	assert.Equal(t, models.ProviderNeon, svc.lastProvider)
}

func TestUnknownProviderRejected(t *testing.T) {
	rec := doJSON(t, newDataMux(&fakeDataService{}), http.MethodGet, "/api/integrations/oracle/tables", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	success, _, errBody := decodeEnvelope(t, rec)
	assert.False(t, success)
	assert.Equal(t, "invalid_request", errBody["code"])
}

func TestMissingTokenIs401(t *testing.T) {
	mux := newDataMux(&fakeDataService{})
	req := httptest.NewRequest(http.MethodGet, "/api/integrations/neon/tables", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorTaxonomyStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrIntegrationNotFound, http.StatusNotFound, "integration_not_found"},
		{"rate limited", apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"inactive", apperrors.ErrIntegrationInactive, http.StatusBadRequest, "integration_inactive"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"not supported", apperrors.ErrNotSupported, http.StatusBadRequest, "not_supported"},
		{"untyped is internal", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeDataService{err: tt.err}
			rec := doJSON(t, newDataMux(svc), http.MethodGet, "/api/integrations/turso/tables", nil)

			require.Equal(t, tt.wantStatus, rec.Code)
			success, _, errBody := decodeEnvelope(t, rec)
			assert.False(t, success)
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestInternalErrorHidesMessage(t *testing.T) {
	svc := &fakeDataService{err: context.DeadlineExceeded}

	mux := http.NewServeMux()
	NewDataHandler(svc, testAuthMW(), zap.NewNop(), false).RegisterRoutes(mux)
	rec := doJSON(t, mux, http.MethodGet, "/api/integrations/neon/tables", nil)

	_, _, errBody := decodeEnvelope(t, rec)
	assert.Equal(t, "internal server error", errBody["message"])
	assert.NotContains(t, errBody, "details")
}

func TestQueryRowsParsesParams(t *testing.T) {
	svc := &fakeDataService{}
	rec := doJSON(t, newDataMux(svc), http.MethodGet,
		"/api/integrations/supabase/tables/profiles/rows?page=2&limit=25&search=ada&sortBy=name&sortDir=desc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "profiles", svc.lastTable)

	_, data, _ := decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), data["totalCount"])
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(25), data["limit"])
	assert.Len(t, data["rows"], 1)
}

func TestQueryRowsEchoesClampedPagination(t *testing.T) {
	svc := &fakeDataService{}
	rec := doJSON(t, newDataMux(svc), http.MethodGet,
		"/api/integrations/supabase/tables/profiles/rows?page=0&limit=9999", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	_, data, _ := decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), data["page"])
	assert.Equal(t, float64(provider.MaxPageLimit), data["limit"])
}

func TestUpdateRowPassesPathID(t *testing.T) {
	svc := &fakeDataService{}
	rec := doJSON(t, newDataMux(svc), http.MethodPatch,
		"/api/integrations/planetscale/tables/orders/rows/42",
		map[string]any{"values": map[string]any{"status": "shipped"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders", svc.lastTable)
	assert.Equal(t, "42", svc.lastID)
}

func TestRawQueryEndpoint(t *testing.T) {
	svc := &fakeDataService{}
	rec := doJSON(t, newDataMux(svc), http.MethodPost,
		"/api/integrations/neon/query", map[string]string{"query": "SELECT 1"})

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			RowCount        int   `json:"rowCount"`
			ExecutionTimeMs int64 `json:"executionTimeMs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, int64(3), envelope.Data.ExecutionTimeMs)
}

func TestMalformedBodyRejected(t *testing.T) {
	mux := newDataMux(&fakeDataService{})
	req := httptest.NewRequest(http.MethodPost, "/api/integrations/neon/query", bytes.NewReader([]byte("{nope")))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
