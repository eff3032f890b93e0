package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/service"
	"github.com/alanyoungcy/coinstats/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingQuerier returns err from every call.
type failingQuerier struct{ err error }

func (f failingQuerier) GetLatest(context.Context, string) (domain.Snapshot, error) {
	return domain.Snapshot{}, f.err
}

func (f failingQuerier) GetDeviation(context.Context, string) (domain.Deviation, error) {
	return domain.Deviation{}, f.err
}

func newMux(q SnapshotQuerier) *http.ServeMux {
	h := NewCoinHandler(q, quietLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Welcome)
	mux.HandleFunc("GET /stats/{id}", h.Stats)
	mux.HandleFunc("GET /deviation/{id}", h.Deviation)
	return mux
}

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func seededService(t *testing.T) *service.SnapshotService {
	t.Helper()
	store := memory.NewSnapshotStore()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []float64{2, 4, 6} {
		_, err := store.Write(context.Background(), domain.AssetBitcoin, domain.Snapshot{
			CurrentPrice: p, MarketCap: 10, PriceChange24h: -1,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	return service.NewSnapshotService(store, nil, quietLogger())
}

func TestWelcome(t *testing.T) {
	rec, _ := serve(t, newMux(seededService(t)), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"Welcome"`, rec.Body.String())
}

func TestStats(t *testing.T) {
	mux := newMux(seededService(t))

	rec, body := serve(t, mux, "/stats/Bitcoin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bitcoin", body["asset"])
	assert.Equal(t, 6.0, body["currentPrice"])
	assert.Equal(t, 10.0, body["marketCap"])
	assert.Equal(t, -1.0, body["priceChange24h"])
	assert.Contains(t, body, "timestamp")

	rec, body = serve(t, mux, "/stats/dogecoin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Coin not found", body["error"])

	rec, body = serve(t, mux, "/stats/matic")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No data available for this coin", body["error"])
}

func TestDeviation(t *testing.T) {
	mux := newMux(seededService(t))

	rec, body := serve(t, mux, "/deviation/bitcoin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bitcoin", body["coin"])
	assert.Equal(t, 3.0, body["dataPoints"])
	assert.InDelta(t, 1.632993, body["standardDeviation"], 1e-6)
	assert.Equal(t, "Calculated with available records (less than 100)", body["message"])

	rec, body = serve(t, mux, "/deviation/ethereum")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No data available for this coin", body["error"])

	rec, body = serve(t, mux, "/deviation/xrp")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Coin not found", body["error"])
}

func TestInternalErrorHidesDetail(t *testing.T) {
	mux := newMux(failingQuerier{err: errors.Join(domain.ErrStorageUnavailable, errors.New("dial tcp 10.0.0.5:5432"))})

	for _, path := range []string{"/stats/bitcoin", "/deviation/bitcoin"} {
		rec, body := serve(t, mux, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", body["error"])
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	}
}

func TestHealthCheck(t *testing.T) {
	svc := seededService(t)

	h := NewHealthHandler(map[string]Checker{
		"postgres": func(context.Context) error { return nil },
	}, svc, quietLogger())
	rec, body := serve(t, http.HandlerFunc(h.HealthCheck), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["snapshots"], 3)

	h = NewHealthHandler(map[string]Checker{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp 10.0.0.7:6379: connection refused") },
	}, nil, quietLogger())
	rec, body = serve(t, http.HandlerFunc(h.HealthCheck), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]any)
	assert.Equal(t, "ok", components["postgres"])
	assert.Equal(t, "error", components["redis"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}
