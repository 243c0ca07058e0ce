package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s *stubValidator) ValidateToken(string) (*Claims, error) {
	return s.claims, s.err
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	m := NewMiddleware(&stubValidator{}, zap.NewNop())

	called := false
	handler := m.RequireAuth(func(http.ResponseWriter, *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/integrations", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Body.String(), "unauthenticated")
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	m := NewMiddleware(&stubValidator{err: errors.New("expired")}, zap.NewNop())

	handler := m.RequireAuth(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsEmptySubject(t *testing.T) {
	m := NewMiddleware(&stubValidator{claims: &Claims{}}, zap.NewNop())

	handler := m.RequireAuth(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthInjectsClaims(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "user-42"
	m := NewMiddleware(&stubValidator{claims: claims}, zap.NewNop())

	var gotUserID string
	handler := m.RequireAuth(func(_ http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", gotUserID)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(req), "header %q", tt.header)
	}
}

func TestUserIDFromContextWithoutClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", UserIDFromContext(req.Context()))
}

func TestDeriveCookieSettings(t *testing.T) {
	assert.Equal(t, CookieSettings{Secure: false}, DeriveCookieSettings("http://localhost:8090", ""))
	assert.Equal(t, CookieSettings{Secure: true}, DeriveCookieSettings("https://deck.example.com", ""))
	assert.Equal(t, CookieSettings{Secure: true, Domain: ".example.com"}, DeriveCookieSettings("https://deck.example.com", ".example.com"))
	assert.Equal(t, CookieSettings{Secure: true}, DeriveCookieSettings("", ""))
}
