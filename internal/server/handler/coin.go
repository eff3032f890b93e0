package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// SnapshotQuerier is the read side the coin endpoints need.
type SnapshotQuerier interface {
	GetLatest(ctx context.Context, rawID string) (domain.Snapshot, error)
	GetDeviation(ctx context.Context, rawID string) (domain.Deviation, error)
}

// CoinHandler serves the public coin endpoints.
type CoinHandler struct {
	svc    SnapshotQuerier
	logger *slog.Logger
}

// NewCoinHandler creates a CoinHandler.
func NewCoinHandler(svc SnapshotQuerier, logger *slog.Logger) *CoinHandler {
	return &CoinHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "coin")),
	}
}

// Welcome answers the root route.
// GET /
func (h *CoinHandler) Welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Welcome")
}

// Stats returns the latest snapshot for a coin.
// GET /stats/{id}
func (h *CoinHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetLatest(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeQueryError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Deviation returns the standard deviation of the last 100 prices.
// GET /deviation/{id}
func (h *CoinHandler) Deviation(w http.ResponseWriter, r *http.Request) {
	dev, err := h.svc.GetDeviation(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeQueryError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
