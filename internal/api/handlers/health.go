package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"quotebot/internal/logger"
)

// CachePinger tests cache liveness
type CachePinger interface {
	Ping(ctx context.Context) error
}

// DurablePinger tests database liveness
type DurablePinger interface {
	Ping() error
}

type healthStatus struct {
	Status   string `json:"status"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

// HealthHandlers reports service and store health
type HealthHandlers struct {
	cache   CachePinger
	durable DurablePinger
}

// NewHealthHandlers creates health handlers over the two stores
func NewHealthHandlers(cache CachePinger, durable DurablePinger) *HealthHandlers {
	return &HealthHandlers{cache: cache, durable: durable}
}

// HealthHandler handles GET /api/health. Degraded stores turn the overall
// status unhealthy but still answer 200 so probes can read the detail.
func (h *HealthHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "healthy", Redis: "connected", Database: "connected"}

	if err := h.cache.Ping(r.Context()); err != nil {
		logger.Log.WithError(err).Warn("Health check: Redis unreachable")
		status.Status = "unhealthy"
		status.Redis = "disconnected"
	}

	if err := h.durable.Ping(); err != nil {
		logger.Log.WithError(err).Warn("Health check: database unreachable")
		status.Status = "unhealthy"
		status.Database = "disconnected"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
