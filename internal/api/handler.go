// Package api exposes the generic data endpoints and task-graph operations
// over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"planbase/internal/domain"
	"planbase/internal/filter"
	"planbase/internal/rest"
	"planbase/internal/tasks"
)

// maxBodyBytes bounds request bodies on the data endpoints.
const maxBodyBytes = 1 << 20

// Handler serves the /v1 API.
type Handler struct {
	data        *rest.Service
	deps        *tasks.DependencyService
	maxPageSize int
	logger      *slog.Logger
}

// NewHandler wires the API handler. maxPageSize caps the limit parameter on
// list endpoints; zero means filter.DefaultMaxLimit.
func NewHandler(data *rest.Service, deps *tasks.DependencyService, maxPageSize int, logger *slog.Logger) *Handler {
	if maxPageSize <= 0 {
		maxPageSize = filter.DefaultMaxLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{data: data, deps: deps, maxPageSize: maxPageSize, logger: logger}
}

// user extracts the authenticated identity. The auth middleware guarantees
// it is present on every route that reaches a handler.
func (h *Handler) user(r *http.Request) domain.UserContext {
	u, _ := domain.UserFromContext(r.Context())
	return u
}

// ListRecords handles GET /v1/data/{table}.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	spec, err := filter.Parse(r.URL.Query(), h.maxPageSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.data.List(r.Context(), h.user(r), table, spec)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRecord handles GET /v1/data/{table}/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	row, err := h.data.Get(r.Context(), h.user(r), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// CreateRecord handles POST /v1/data/{table}.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	row, err := h.data.Insert(r.Context(), h.user(r), chi.URLParam(r, "table"), body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// UpdateRecord handles PATCH /v1/data/{table}/{id}.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	row, err := h.data.Update(r.Context(), h.user(r), chi.URLParam(r, "table"), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// DeleteRecord handles DELETE /v1/data/{table}/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	err := h.data.Delete(r.Context(), h.user(r), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAuditLog handles GET /v1/audit. The audit table carries no policy
// entry, so only admin callers see rows.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	spec, err := filter.Parse(r.URL.Query(), h.maxPageSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.data.List(r.Context(), h.user(r), "audit_log", spec)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// dependencyRequest is the body of POST /v1/tasks/{id}/dependencies.
type dependencyRequest struct {
	DependsOnID string `json:"depends_on_id"`
}

// AddTaskDependency handles POST /v1/tasks/{id}/dependencies.
func (h *Handler) AddTaskDependency(w http.ResponseWriter, r *http.Request) {
	var req dependencyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, domain.ErrValidation("invalid JSON body"))
		return
	}

	id, err := h.deps.Add(r.Context(), h.user(r), chi.URLParam(r, "id"), req.DependsOnID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":            id,
		"task_id":       chi.URLParam(r, "id"),
		"depends_on_id": req.DependsOnID,
	})
}

// RemoveTaskDependency handles DELETE /v1/tasks/{id}/dependencies/{depID}.
func (h *Handler) RemoveTaskDependency(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Remove(r.Context(), h.user(r), chi.URLParam(r, "id"), chi.URLParam(r, "depID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody parses a JSON object body, rejecting anything else.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, domain.ErrValidation("invalid JSON body"))
		return nil, false
	}
	return body, true
}
