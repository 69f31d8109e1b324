package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docqa/internal/storage"
)

// SessionHandler serves stored conversation history.
type SessionHandler struct {
	sessions storage.SessionStore
	window   int
}

func NewSessionHandler(sessions storage.SessionStore, window int) *SessionHandler {
	if window <= 0 {
		window = 50
	}
	return &SessionHandler{sessions: sessions, window: window}
}

type sessionResponse struct {
	Session  *storage.Session        `json:"session"`
	Messages []storage.MessageRecord `json:"messages"`
}

// Get handles GET /api/v1/sessions/{sessionID}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	msgs, err := h.sessions.RecentMessages(r.Context(), id, h.window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []storage.MessageRecord{}
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Messages: msgs})
}

// Delete handles DELETE /api/v1/sessions/{sessionID}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	err := h.sessions.DeleteSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
