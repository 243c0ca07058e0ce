package handlers

import "net/http"

// HealthHandler reports liveness plus build metadata.
type HealthHandler struct {
	version string
	env     string
}

// NewHealthHandler creates the handler.
func NewHealthHandler(version, env string) *HealthHandler {
	return &HealthHandler{version: version, env: env}
}

// RegisterRoutes mounts the health endpoint. It sits outside auth so load
// balancers can probe it.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Check)
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
		"env":     h.env,
	})
}
