package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/services"
)

// AnalyticsHandler handles the statistics and insight endpoints.
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
	insights  *services.InsightService
	logger    *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analytics *services.AnalyticsService, insights *services.InsightService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, insights: insights, logger: logger}
}

// RegisterRoutes registers the analytics handler's routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/analytics", h.Stats)
	mux.HandleFunc("POST /api/insights", h.Insights)
}

// Stats handles GET /api/analytics requests.
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.analytics.Stats()); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Insights handles POST /api/insights requests.
// Always answers 200; when the model provider is absent or failing the
// report carries heuristic insights and says so in its source field.
func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	report := h.insights.Generate(r.Context())
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
