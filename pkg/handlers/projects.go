package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/models"
	"github.com/partsbench/partsbench-engine/pkg/services"
)

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	ledger services.LedgerService
	logger *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(ledger services.LedgerService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes registers the project handler's routes on the given mux.
func (h *ProjectHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects/{pid}", h.Get)
	mux.HandleFunc("DELETE /api/projects/{pid}", h.Delete)
	mux.HandleFunc("PUT /api/projects/{pid}/status", h.SetStatus)
	mux.HandleFunc("POST /api/projects/{pid}/deallocate", h.Deallocate)
	mux.HandleFunc("POST /api/projects/{pid}/components", h.AttachComponent)
}

// List handles GET /api/projects requests.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"projects": h.ledger.Projects()})
}

// CreateProjectRequest is the body for POST /api/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	Description string `json:"description,omitempty"`
}

// Create handles POST /api/projects requests.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	project, err := h.ledger.AddProject(req.Name, req.Kind, req.Description)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, project)
}

// Get handles GET /api/projects/{pid} requests.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.ledger.Project(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{pid} requests.
// Releases all of the project's allocations before removing it.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ledger.RemoveProject(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatusRequest is the body for PUT /api/projects/{pid}/status.
type SetStatusRequest struct {
	Status models.ProjectStatus `json:"status"`
}

// SetStatus handles PUT /api/projects/{pid}/status requests.
func (h *ProjectHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	project, err := h.ledger.SetProjectStatus(id, req.Status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

// Deallocate handles POST /api/projects/{pid}/deallocate requests.
// Releases every allocation held by the project; idempotent.
func (h *ProjectHandler) Deallocate(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.ledger.Project(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := h.ledger.Deallocate(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachComponent handles POST /api/projects/{pid}/components requests.
// The body is a component reference; when is_allocated is set the referenced
// stock is reserved atomically with the attach.
func (h *ProjectHandler) AttachComponent(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var ref models.ComponentRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	project, err := h.ledger.AttachComponent(id, ref)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ProjectHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *ProjectHandler) writeServiceError(w http.ResponseWriter, err error) {
	if werr := WriteServiceError(w, err); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}
