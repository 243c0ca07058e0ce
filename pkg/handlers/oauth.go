package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/oauth"
	"github.com/tabledeck/tabledeck-engine/pkg/services"
)

const (
	stateCookieName      = "td_oauth_state"
	deploymentCookieName = "td_oauth_deployment"
	stateCookieTTL       = 10 * time.Minute
)

// OAuthHandler runs the authorization-code flow end to end: redirect with a
// CSRF state cookie, then callback verification and token storage.
type OAuthHandler struct {
	integrations   services.IntegrationService
	exchangers     map[models.Provider]*oauth.Exchanger
	authMW         *auth.Middleware
	cookies        auth.CookieSettings
	logger         *zap.Logger
	includeDetails bool
}

// NewOAuthHandler creates the handler. exchangers holds one entry per
// configured OAuth provider; unconfigured providers 404 at the route level.
func NewOAuthHandler(
	integrations services.IntegrationService,
	exchangers map[models.Provider]*oauth.Exchanger,
	authMW *auth.Middleware,
	cookies auth.CookieSettings,
	logger *zap.Logger,
	includeDetails bool,
) *OAuthHandler {
	return &OAuthHandler{
		integrations:   integrations,
		exchangers:     exchangers,
		authMW:         authMW,
		cookies:        cookies,
		logger:         logger.Named("oauth"),
		includeDetails: includeDetails,
	}
}

// RegisterRoutes mounts the OAuth endpoints. Both sit behind bearer auth:
// the provider's redirect lands on the frontend, which re-issues the
// callback to this API with the user's token and the browser's cookies
// attached. A bare browser navigation hitting the callback directly gets a
// 401 and no token exchange happens.
func (h *OAuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/oauth/{provider}/authorize", h.authMW.RequireAuth(h.Authorize))
	mux.HandleFunc("GET /api/oauth/{provider}/callback", h.authMW.RequireAuth(h.Callback))
}

func (h *OAuthHandler) exchangerFor(w http.ResponseWriter, r *http.Request) (*oauth.Exchanger, models.Provider, bool) {
	provider, ok := providerFromPath(w, r)
	if !ok {
		return nil, "", false
	}
	if !provider.SupportsOAuth() {
		WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "provider does not support oauth")
		return nil, "", false
	}
	exchanger, ok := h.exchangers[provider]
	if !ok {
		WriteErrorCode(w, http.StatusBadRequest, "configuration_error", "oauth client is not configured for this provider")
		return nil, "", false
	}
	return exchanger, provider, true
}

func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	exchanger, _, ok := h.exchangerFor(w, r)
	if !ok {
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	h.setFlowCookie(w, stateCookieName, state)
	// the document store needs its deployment URL alongside the tokens;
	// carry it through the redirect in a sibling cookie
	if deployment := r.URL.Query().Get("deployment_url"); deployment != "" {
		h.setFlowCookie(w, deploymentCookieName, deployment)
	}

	http.Redirect(w, r, exchanger.AuthorizeURL(state), http.StatusFound)
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	exchanger, provider, ok := h.exchangerFor(w, r)
	if !ok {
		return
	}

	// the state cookie is single-use: cleared whether or not the exchange
	// goes through
	stateCookie, cookieErr := r.Cookie(stateCookieName)
	h.clearFlowCookie(w, stateCookieName)

	state := r.URL.Query().Get("state")
	if cookieErr != nil || state == "" || stateCookie.Value != state {
		h.clearFlowCookie(w, deploymentCookieName)
		WriteError(w, h.logger, apperrors.ErrInvalidState, h.includeDetails)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.clearFlowCookie(w, deploymentCookieName)
		WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "missing authorization code")
		return
	}

	tokens, err := exchanger.ExchangeCode(r.Context(), code)
	if err != nil {
		h.clearFlowCookie(w, deploymentCookieName)
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	fields := tokens.CredentialFields()
	if deploymentCookie, err := r.Cookie(deploymentCookieName); err == nil && deploymentCookie.Value != "" {
		fields["deployment_url"] = deploymentCookie.Value
	}
	h.clearFlowCookie(w, deploymentCookieName)

	integration, err := h.integrations.CompleteOAuth(r.Context(), auth.UserIDFromContext(r.Context()), provider, fields)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, integration)
}

func (h *OAuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/api/oauth",
		Domain:   h.cookies.Domain,
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *OAuthHandler) clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/api/oauth",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
