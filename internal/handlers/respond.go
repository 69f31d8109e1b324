package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"docqa/internal/contextutil"
	"docqa/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError logs the underlying cause and returns only the stable
// user-facing message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	uerr := service.Translate(err)
	logger := contextutil.LoggerFromContext(r.Context())
	if uerr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", slog.Int("status", uerr.Status), slog.String("error", uerr.Error()))
	} else {
		logger.WarnContext(r.Context(), "request rejected", slog.Int("status", uerr.Status), slog.String("error", uerr.Error()))
	}
	writeJSON(w, uerr.Status, errorResponse{Error: uerr.Message})
}
