package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/coinstats/internal/service"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// Summarizer reports per-asset snapshot counts.
type Summarizer interface {
	StoreSummary(ctx context.Context) ([]service.AssetCount, error)
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	checks  map[string]Checker
	summary Summarizer
	logger  *slog.Logger
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler. summary may be nil.
func NewHealthHandler(checks map[string]Checker, summary Summarizer, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		summary: summary,
		logger:  logger.With(slog.String("handler", "health")),
		timeout: 3 * time.Second,
	}
}

// HealthCheck reports each dependency. Any failing check turns the response
// into a 503.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = "error"
			status = "degraded"
			code = http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	}
	if h.summary != nil && code == http.StatusOK {
		if counts, err := h.summary.StoreSummary(ctx); err == nil {
			body["snapshots"] = counts
		}
	}
	writeJSON(w, code, body)
}
