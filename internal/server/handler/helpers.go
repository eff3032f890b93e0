package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// Error bodies returned to API callers.
const (
	msgCoinNotFound = "Coin not found"
	msgNoData       = "No data available for this coin"
	msgInternal     = "Internal server error"
)

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a bare 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"`+msgInternal+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeQueryError maps a service error onto the public error contract.
// Unexpected errors are logged; their detail never reaches the caller.
func writeQueryError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownAsset):
		writeError(w, http.StatusNotFound, msgCoinNotFound)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNoData)
	default:
		logger.ErrorContext(r.Context(), "query failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// pathParam reads a Go 1.22 route wildcard.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
