// Package oauth implements the authorization-code exchange used to connect
// OAuth-capable providers without pasting credentials.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/config"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

// TokenResponse is the provider's token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Exchanger performs the authorization-code flow for one provider.
type Exchanger struct {
	provider    models.Provider
	cfg         config.OAuthProviderConfig
	redirectURI string
	http        *http.Client
	logger      *zap.Logger
}

// NewExchanger wires an exchanger. Returns a configuration error when the
// client registration is incomplete so the authorize endpoint can refuse
// early instead of redirecting into a broken flow.
func NewExchanger(p models.Provider, cfg config.OAuthProviderConfig, redirectURI string, logger *zap.Logger) (*Exchanger, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: oauth client for %q is not configured", apperrors.ErrConfiguration, p)
	}
	return &Exchanger{
		provider:    p,
		cfg:         cfg,
		redirectURI: redirectURI,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      logger.Named("oauth").With(zap.String("provider", string(p))),
	}, nil
}

// NewState returns 32 random bytes hex-encoded for the CSRF state cookie.
func NewState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthorizeURL builds the provider redirect carrying the state.
func (e *Exchanger) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", e.cfg.ClientID)
	params.Set("redirect_uri", e.redirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	if e.cfg.Scopes != "" {
		params.Set("scope", e.cfg.Scopes)
	}

	sep := "?"
	if strings.Contains(e.cfg.AuthURL, "?") {
		sep = "&"
	}
	return e.cfg.AuthURL + sep + params.Encode()
}

// ExchangeCode trades the authorization code for tokens with a form POST.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("redirect_uri", e.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token endpoint unreachable: %s", apperrors.ErrConnectionFailed, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("token exchange rejected", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: token endpoint returned status %d", apperrors.ErrInvalidRequest, resp.StatusCode)
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: malformed token response", apperrors.ErrInvalidRequest)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", apperrors.ErrInvalidRequest)
	}
	return &tokens, nil
}

// CredentialFields converts the token response into the credential map the
// integration store expects. Expiry is not tracked; an expired token
// surfaces as a connection failure asking for re-authorization.
func (t *TokenResponse) CredentialFields() map[string]string {
	fields := map[string]string{"access_token": t.AccessToken}
	if t.RefreshToken != "" {
		fields["refresh_token"] = t.RefreshToken
	}
	return fields
}
