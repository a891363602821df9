package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/models"
	"github.com/partsbench/partsbench-engine/pkg/services"
)

// ItemHandler handles inventory item endpoints.
type ItemHandler struct {
	ledger    services.LedgerService
	analytics *services.AnalyticsService
	logger    *zap.Logger
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(ledger services.LedgerService, analytics *services.AnalyticsService, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{ledger: ledger, analytics: analytics, logger: logger}
}

// RegisterRoutes registers the item handler's routes on the given mux.
func (h *ItemHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/items", h.List)
	mux.HandleFunc("POST /api/items", h.Create)
	mux.HandleFunc("GET /api/items/{id}", h.Get)
	mux.HandleFunc("DELETE /api/items/{id}", h.Delete)
	mux.HandleFunc("POST /api/items/{id}/checkout", h.Checkout)
	mux.HandleFunc("POST /api/items/{id}/allocate", h.Allocate)
	mux.HandleFunc("GET /api/items/{id}/allocations", h.Allocations)
}

// List handles GET /api/items requests.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"items": h.ledger.Items()})
}

// Create handles POST /api/items requests.
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec models.ItemSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	item, err := h.ledger.AddComponent(spec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.analytics.MarkDirty()
	h.writeJSON(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id} requests.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	item, err := h.ledger.Item(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id} requests.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ledger.RemoveComponent(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.analytics.MarkDirty()
	w.WriteHeader(http.StatusNoContent)
}

// CheckoutRequest is the body for POST /api/items/{id}/checkout.
type CheckoutRequest struct {
	Quantity int `json:"quantity"`
}

// Checkout handles POST /api/items/{id}/checkout requests.
// Consumes stock, e.g. when parts are soldered into a build.
func (h *ItemHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	item, err := h.ledger.Checkout(id, req.Quantity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.analytics.MarkDirty()
	h.writeJSON(w, http.StatusOK, item)
}

// AllocateRequest is the body for POST /api/items/{id}/allocate.
type AllocateRequest struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name,omitempty"`
	Quantity    int       `json:"quantity"`
}

// Allocate handles POST /api/items/{id}/allocate requests.
// Reserves stock for a project without consuming it.
func (h *ItemHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	item, err := h.ledger.Allocate(id, req.ProjectID, req.ProjectName, req.Quantity)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.analytics.MarkDirty()
	h.writeJSON(w, http.StatusOK, item)
}

// Allocations handles GET /api/items/{id}/allocations requests.
func (h *ItemHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.ledger.Item(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	records := h.ledger.AllocationsFor(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"allocations": records})
}

func (h *ItemHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ItemHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *ItemHandler) writeServiceError(w http.ResponseWriter, err error) {
	if werr := WriteServiceError(w, err); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}
