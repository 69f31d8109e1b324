package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"docqa/internal/contextutil"
	"docqa/internal/indexer"
	"docqa/internal/vectorstore"
)

// Reindexer is the slice of the indexing pipeline the admin API needs.
type Reindexer interface {
	StartReindex(ctx context.Context, sourceDir string) error
	Status() indexer.Status
}

// AdminHandler serves index administration: triggering rebuilds and
// reporting index state.
type AdminHandler struct {
	pipeline Reindexer
	store    vectorstore.VectorStore
	alias    string
	docsDir  string
	logger   *slog.Logger
}

func NewAdminHandler(pipeline Reindexer, store vectorstore.VectorStore, alias, docsDir string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		pipeline: pipeline,
		store:    store,
		alias:    alias,
		docsDir:  docsDir,
		logger:   logger,
	}
}

type reindexRequest struct {
	SourceDirectory string `json:"source_directory"`
}

type reindexAccepted struct {
	Status string `json:"status"`
}

// Reindex handles POST /api/v1/admin/reindex. An empty body reindexes
// the configured docs directory. The rebuild runs in the background;
// the request context ends when the response is written, so the run
// gets its own context carrying the server logger.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	sourceDir := h.docsDir
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.SourceDirectory != "" {
		sourceDir = req.SourceDirectory
	}

	runCtx := contextutil.WithLogger(context.Background(), h.logger)

	if err := h.pipeline.StartReindex(runCtx, sourceDir); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reindexAccepted{Status: "started"})
}

type reindexStatus struct {
	State       string                           `json:"state"`
	LastRun     indexer.ReindexSummary           `json:"last_run"`
	Collection  string                           `json:"collection,omitempty"`
	PointsCount uint64                           `json:"points_count,omitempty"`
	Generations []vectorstore.CollectionSnapshot `json:"generations,omitempty"`
}

// ReindexStatus handles GET /api/v1/admin/reindex/status. The live
// collection stats are best-effort; a store outage still reports the
// pipeline state.
func (h *AdminHandler) ReindexStatus(w http.ResponseWriter, r *http.Request) {
	status := h.pipeline.Status()

	resp := reindexStatus{
		State:   string(status.State),
		LastRun: status.Last,
	}

	current, err := h.store.ResolveAlias(r.Context(), h.alias)
	if err == nil && current != "" {
		resp.Collection = current
		if count, err := h.store.PointsCount(r.Context(), current); err == nil {
			resp.PointsCount = count
		}
	}
	if names, err := h.store.ListCollections(r.Context()); err == nil {
		resp.Generations = snapshots(names, h.alias, current)
	}

	writeJSON(w, http.StatusOK, resp)
}

// snapshots filters the store's collections down to this alias's
// generations. An unswapped build in progress shows up here too.
func snapshots(names []string, alias, current string) []vectorstore.CollectionSnapshot {
	var gens []vectorstore.CollectionSnapshot
	for _, name := range names {
		if !strings.HasPrefix(name, alias+"_gen_") {
			continue
		}
		gens = append(gens, vectorstore.CollectionSnapshot{
			Name:        name,
			AliasTarget: name == current,
		})
	}
	return gens
}
