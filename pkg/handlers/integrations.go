package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/services"
)

// IntegrationsHandler exposes the credential lifecycle endpoints.
type IntegrationsHandler struct {
	integrations   services.IntegrationService
	authMW         *auth.Middleware
	logger         *zap.Logger
	includeDetails bool
}

// NewIntegrationsHandler creates the handler.
func NewIntegrationsHandler(integrations services.IntegrationService, authMW *auth.Middleware, logger *zap.Logger, includeDetails bool) *IntegrationsHandler {
	return &IntegrationsHandler{
		integrations:   integrations,
		authMW:         authMW,
		logger:         logger.Named("integrations"),
		includeDetails: includeDetails,
	}
}

// RegisterRoutes mounts the integration endpoints.
func (h *IntegrationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/integrations", h.authMW.RequireAuth(h.List))
	mux.HandleFunc("POST /api/integrations/{provider}/connect", h.authMW.RequireAuth(h.Connect))
	mux.HandleFunc("DELETE /api/integrations/{provider}", h.authMW.RequireAuth(h.Disconnect))
}

// connectRequest is the connect payload. Credentials is the provider's
// field map; TestOnly verifies without persisting.
type connectRequest struct {
	Credentials map[string]string `json:"credentials"`
	TestOnly    bool              `json:"testOnly"`
}

func (h *IntegrationsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	if len(req.Credentials) == 0 {
		WriteErrorCode(w, http.StatusBadRequest, "invalid_request", "credentials are required")
		return
	}

	integration, err := h.integrations.Connect(r.Context(), auth.UserIDFromContext(r.Context()), provider, req.Credentials, req.TestOnly)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	if req.TestOnly {
		WriteSuccess(w, http.StatusOK, map[string]any{"verified": true})
		return
	}
	WriteSuccess(w, http.StatusCreated, integration)
}

func (h *IntegrationsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	if err := h.integrations.Disconnect(r.Context(), auth.UserIDFromContext(r.Context()), provider); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"disconnected": true})
}

func (h *IntegrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.integrations.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, statuses)
}

// providerFromPath validates the {provider} path segment, writing the
// envelope error itself when the name is unknown.
func providerFromPath(w http.ResponseWriter, r *http.Request) (models.Provider, bool) {
	provider, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		WriteErrorCode(w, http.StatusBadRequest, "invalid_request", err.Error())
		return "", false
	}
	return provider, true
}
