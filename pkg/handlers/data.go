package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/services"
)

// DataHandler exposes the table and row endpoints over a connected backend.
type DataHandler struct {
	data           services.DataService
	authMW         *auth.Middleware
	logger         *zap.Logger
	includeDetails bool
}

// NewDataHandler creates the handler.
func NewDataHandler(data services.DataService, authMW *auth.Middleware, logger *zap.Logger, includeDetails bool) *DataHandler {
	return &DataHandler{
		data:           data,
		authMW:         authMW,
		logger:         logger.Named("data"),
		includeDetails: includeDetails,
	}
}

// RegisterRoutes mounts the data endpoints.
func (h *DataHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/integrations/{provider}/tables", h.authMW.RequireAuth(h.ListTables))
	mux.HandleFunc("POST /api/integrations/{provider}/tables", h.authMW.RequireAuth(h.CreateTable))
	mux.HandleFunc("GET /api/integrations/{provider}/tables/{table}/schema", h.authMW.RequireAuth(h.GetSchema))
	mux.HandleFunc("GET /api/integrations/{provider}/tables/{table}/rows", h.authMW.RequireAuth(h.QueryRows))
	mux.HandleFunc("POST /api/integrations/{provider}/tables/{table}/rows", h.authMW.RequireAuth(h.InsertRow))
	mux.HandleFunc("PATCH /api/integrations/{provider}/tables/{table}/rows/{id}", h.authMW.RequireAuth(h.UpdateRow))
	mux.HandleFunc("DELETE /api/integrations/{provider}/tables/{table}/rows/{id}", h.authMW.RequireAuth(h.DeleteRow))
	mux.HandleFunc("POST /api/integrations/{provider}/query", h.authMW.RequireAuth(h.RunRawQuery))
}

func (h *DataHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	tables, err := h.data.ListTables(r.Context(), auth.UserIDFromContext(r.Context()), p)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *DataHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	columns, err := h.data.GetSchema(r.Context(), auth.UserIDFromContext(r.Context()), p, r.PathValue("table"))
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"columns": columns})
}

func (h *DataHandler) QueryRows(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := provider.RowQuery{
		Page:    intParam(q.Get("page")),
		Limit:   intParam(q.Get("limit")),
		Search:  q.Get("search"),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
	}

	page, err := h.data.QueryRows(r.Context(), auth.UserIDFromContext(r.Context()), p, r.PathValue("table"), query)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	// echo the clamped pagination so callers render the page they actually got
	normalized := query.Normalize()
	WriteSuccess(w, http.StatusOK, map[string]any{
		"rows":       page.Rows,
		"totalCount": page.TotalCount,
		"page":       normalized.Page,
		"limit":      normalized.Limit,
	})
}

// rowRequest is the insert/update payload.
type rowRequest struct {
	Values map[string]any `json:"values"`
}

func (h *DataHandler) InsertRow(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	var req rowRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	row, err := h.data.InsertRow(r.Context(), auth.UserIDFromContext(r.Context()), p, r.PathValue("table"), req.Values)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusCreated, row)
}

func (h *DataHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	var req rowRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	err := h.data.UpdateRow(r.Context(), auth.UserIDFromContext(r.Context()), p, r.PathValue("table"), r.PathValue("id"), req.Values)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *DataHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	err := h.data.DeleteRow(r.Context(), auth.UserIDFromContext(r.Context()), p, r.PathValue("table"), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]any{"deleted": true})
}

// rawQueryRequest is the raw statement payload.
type rawQueryRequest struct {
	Query string `json:"query"`
}

func (h *DataHandler) RunRawQuery(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	var req rawQueryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	result, err := h.data.RunRawQuery(r.Context(), auth.UserIDFromContext(r.Context()), p, req.Query)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusOK, result)
}

// createTableRequest is the table creation payload.
type createTableRequest struct {
	Table   string                `json:"table"`
	Columns []provider.ColumnSpec `json:"columns"`
}

func (h *DataHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	p, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	var req createTableRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}

	ddl, err := h.data.CreateTable(r.Context(), auth.UserIDFromContext(r.Context()), p, req.Table, req.Columns)
	if err != nil {
		WriteError(w, h.logger, err, h.includeDetails)
		return
	}
	WriteSuccess(w, http.StatusCreated, map[string]any{"sql": ddl})
}

func intParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
