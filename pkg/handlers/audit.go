package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/repositories"
)

// AuditHandler serves the activity feed read API.
type AuditHandler struct {
	repo           repositories.AuditRepository
	authMW         *auth.Middleware
	logger         *zap.Logger
	includeDetails bool
}

// NewAuditHandler creates the handler.
func NewAuditHandler(repo repositories.AuditRepository, authMW *auth.Middleware, logger *zap.Logger, includeDetails bool) *AuditHandler {
	return &AuditHandler{
		repo:           repo,
		authMW:         authMW,
		logger:         logger.Named("audit"),
		includeDetails: includeDetails,
	}
}

// RegisterRoutes mounts the audit endpoint.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/audit", h.authMW.RequireAuth(h.List))
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListByUser(r.Context(), auth.UserIDFromContext(r.Context()), intParam(r.URL.Query().Get("limit")))
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"entries": entries})
}
