package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/observability"
)

// HealthHandler exposes cache health and statistics over HTTP
type HealthHandler struct {
	coordinator *Coordinator
	logger      observability.Logger
}

// NewHealthHandler creates a health handler for the coordinator
func NewHealthHandler(coordinator *Coordinator, logger observability.Logger) *HealthHandler {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &HealthHandler{
		coordinator: coordinator,
		logger:      logger.WithPrefix("cache.health.handler"),
	}
}

// HandleHealth is the main health check endpoint
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := h.coordinator.Health(ctx)

	// Degraded still serves reads, so it stays 200
	statusCode := http.StatusOK
	if health.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.logger.Warn("Failed to encode health response", map[string]interface{}{"error": err.Error()})
	}
}

// HandleHealthLiveness is a simple liveness check
func (h *HealthHandler) HandleHealthLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Warn("Failed to encode liveness response", map[string]interface{}{"error": err.Error()})
	}
}

// HandleHealthStats returns coordinator and per-tier statistics
func (h *HealthHandler) HandleHealthStats(w http.ResponseWriter, r *http.Request) {
	stats := h.coordinator.Stats()

	response := map[string]interface{}{
		"stats":     stats,
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Warn("Failed to encode stats response", map[string]interface{}{"error": err.Error()})
	}
}

// RegisterRoutes registers the health endpoints on a mux
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	if prefix == "" {
		prefix = "/health"
	}

	mux.HandleFunc(prefix, h.HandleHealth)
	mux.HandleFunc(prefix+"/live", h.HandleHealthLiveness)
	mux.HandleFunc(prefix+"/stats", h.HandleHealthStats)
}
