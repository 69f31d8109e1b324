package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"docqa/internal/service"
)

// QueryAnswerer is the slice of the query service the handlers need.
type QueryAnswerer interface {
	AnswerGlobal(ctx context.Context, req service.QueryRequest) (*service.QueryResponse, error)
	AnswerSelection(ctx context.Context, req service.QueryRequest) (*service.QueryResponse, error)
}

// QueryHandler serves the two answer modes.
type QueryHandler struct {
	svc QueryAnswerer
}

func NewQueryHandler(svc QueryAnswerer) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Global handles POST /api/v1/query/global.
func (h *QueryHandler) Global(w http.ResponseWriter, r *http.Request) {
	var req service.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &service.ValidationError{Field: "body", Message: "must be valid JSON"})
		return
	}

	resp, err := h.svc.AnswerGlobal(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Selection handles POST /api/v1/query/selection.
func (h *QueryHandler) Selection(w http.ResponseWriter, r *http.Request) {
	var req service.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &service.ValidationError{Field: "body", Message: "must be valid JSON"})
		return
	}

	resp, err := h.svc.AnswerSelection(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
