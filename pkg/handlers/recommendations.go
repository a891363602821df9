package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/services"
)

// RecommendationHandler handles alternative and suggestion endpoints.
type RecommendationHandler struct {
	recommendations services.RecommendationService
	logger          *zap.Logger
}

// NewRecommendationHandler creates a new RecommendationHandler.
func NewRecommendationHandler(recommendations services.RecommendationService, logger *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations, logger: logger}
}

// RegisterRoutes registers the recommendation handler's routes on the given mux.
func (h *RecommendationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/items/{id}/alternatives", h.Alternatives)
	mux.HandleFunc("GET /api/projects/{pid}/suggestions", h.Suggestions)
}

// Alternatives handles GET /api/items/{id}/alternatives requests.
// ?refresh=1 drops the cached entry and recomputes.
func (h *RecommendationHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseItemID(w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.recommendations.Alternatives(r.Context(), id, refreshRequested(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, entry)
}

// Suggestions handles GET /api/projects/{pid}/suggestions requests.
// ?threshold= overrides the configured confidence floor for this request
// only; ?refresh=1 drops the cached entry and recomputes.
func (h *RecommendationHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var threshold *float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_threshold", "Threshold must be a number"); werr != nil {
				h.logger.Error("Failed to write error response", zap.Error(werr))
			}
			return
		}
		threshold = &parsed
	}

	entry, err := h.recommendations.Suggestions(r.Context(), id, threshold, refreshRequested(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, entry)
}

func refreshRequested(r *http.Request) bool {
	switch r.URL.Query().Get("refresh") {
	case "1", "true":
		return true
	}
	return false
}

func (h *RecommendationHandler) writeJSON(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *RecommendationHandler) writeServiceError(w http.ResponseWriter, err error) {
	if werr := WriteServiceError(w, err); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}
