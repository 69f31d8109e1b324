package handlers

import (
	"net/http"

	"docqa/internal/vectorstore"
)

// HealthHandler reports service liveness and index reachability.
type HealthHandler struct {
	store vectorstore.VectorStore
	alias string
}

func NewHealthHandler(store vectorstore.VectorStore, alias string) *HealthHandler {
	return &HealthHandler{store: store, alias: alias}
}

type healthResponse struct {
	Status     string `json:"status"`
	Index      string `json:"index"`
	Collection string `json:"collection,omitempty"`
}

// Check handles GET /api/health. A store outage degrades the report but
// the process itself still answers 200.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Index: "unavailable"}

	if current, err := h.store.ResolveAlias(r.Context(), h.alias); err == nil {
		if current == "" {
			resp.Index = "empty"
		} else {
			resp.Index = "ready"
			resp.Collection = current
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
