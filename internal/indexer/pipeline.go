package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/contextutil"
	"docqa/internal/docparse"
	"docqa/internal/observability"
	"docqa/internal/source"
	"docqa/internal/vectorstore"
)

// ErrReindexRunning is returned when a reindex is triggered while another
// run holds the single-slot guard. The second trigger is rejected, never
// queued.
var ErrReindexRunning = errors.New("reindex already running")

// PipelineConfig carries the tunables for the indexing pipeline.
type PipelineConfig struct {
	Alias            string
	VectorSize       int
	MaxUnitTokens    int
	SplitDepth       int
	EmbedBatchSize   int
	EmbedConcurrency int
}

// Pipeline orchestrates parse -> chunk -> embed -> store for a corpus and
// owns the atomic generation swap performed by Reindex.
type Pipeline struct {
	embedder Embedder
	store    vectorstore.VectorStore
	cfg      PipelineConfig
	parser   *docparse.Parser
	chunker  *Chunker
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	state   ReindexState
	last    ReindexSummary
}

// Embedder is the slice of the embedding client the pipeline needs.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// NewPipeline creates an indexing pipeline.
func NewPipeline(embedder Embedder, store vectorstore.VectorStore, cfg PipelineConfig) *Pipeline {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		parser:   docparse.NewParser(),
		chunker:  NewChunker(cfg.MaxUnitTokens, cfg.SplitDepth),
		logger:   slog.Default(),
		state:    StateIdle,
	}
}

// Status is a point-in-time view of the reindex lifecycle.
type Status struct {
	State ReindexState
	Last  ReindexSummary
}

// Status returns the current reindex state and the last run's summary.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{State: p.state, Last: p.last}
}

func (p *Pipeline) setState(state ReindexState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// IndexAll discovers documents under sourceDir and indexes them into the
// named collection. Per-file read and parse failures are logged, counted,
// and skipped. An embedding failure that survives the client's retries
// aborts the run: a half-embedded corpus must never look complete.
func (p *Pipeline) IndexAll(ctx context.Context, sourceDir, collection string) (IndexSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := source.Scan(ctx, sourceDir)
	if err != nil {
		return IndexSummary{}, fmt.Errorf("failed to scan source directory: %w", err)
	}
	logger.InfoContext(ctx, "indexing corpus", "dir", sourceDir, "files", len(files), "collection", collection)

	var summary IndexSummary
	for _, file := range files {
		units, err := p.indexFile(ctx, file, collection)
		if err != nil {
			var parseErr *docparse.ParseError
			if errors.As(err, &parseErr) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				logger.WarnContext(ctx, "skipping file", "path", file.RelPath, "error", err)
				summary.FilesSkipped++
				continue
			}
			return summary, err
		}
		summary.FilesProcessed++
		summary.UnitsProduced += units
	}

	logger.InfoContext(ctx, "indexing complete",
		"files_processed", summary.FilesProcessed,
		"files_skipped", summary.FilesSkipped,
		"units", summary.UnitsProduced,
	)
	return summary, nil
}

// indexFile parses, chunks, embeds and stores one document. Returns the
// number of units written.
func (p *Pipeline) indexFile(ctx context.Context, file source.File, collection string) (int, error) {
	raw, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return 0, err
	}

	doc, err := p.parser.Parse(file.RelPath, raw)
	if err != nil {
		return 0, err
	}

	units := p.chunker.ChunkDocument(doc)
	if len(units) == 0 {
		return 0, nil
	}

	if err := p.embedUnits(ctx, units); err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", file.RelPath, err)
	}

	points := make([]vectorstore.Point, len(units))
	for i, unit := range units {
		points[i] = vectorstore.Point{
			ID:      uuid.New().String(),
			Vector:  unit.Embedding,
			Payload: unitPayload(unit),
		}
	}

	if err := p.store.Upsert(ctx, collection, points); err != nil {
		return 0, err
	}
	observability.IndexedUnitsTotal.Add(float64(len(units)))

	return len(units), nil
}

// embedUnits embeds the units of one file in batches. Batches are
// dispatched concurrently up to the configured limit and reassembled by
// batch index, so unit order stays deterministic regardless of completion
// order.
func (p *Pipeline) embedUnits(ctx context.Context, units []ContentUnit) error {
	batchSize := p.cfg.EmbedBatchSize
	numBatches := (len(units) + batchSize - 1) / batchSize

	vectors := make([][][]float32, numBatches)
	errs := make([]error, numBatches)

	sem := make(chan struct{}, p.cfg.EmbedConcurrency)
	var wg sync.WaitGroup

	for b := 0; b < numBatches; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(units) {
			end = len(units)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = units[i].Text
		}

		wg.Add(1)
		go func(b int, texts []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vecs, err := p.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				errs[b] = err
				return
			}
			vectors[b] = vecs
		}(b, texts)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for b := 0; b < numBatches; b++ {
		start := b * batchSize
		for j, vec := range vectors[b] {
			units[start+j].Embedding = vec
		}
	}
	return nil
}

// Reindex builds a new index generation and atomically swaps the stable
// alias to it:
//
//  1. create a uniquely named generation collection
//  2. index the full corpus into it
//  3. repoint the alias in a single store-level update
//  4. delete the previous generation
//
// If the build fails, the alias is untouched and live queries keep serving
// the previous generation; the partial collection is deleted best-effort.
func (p *Pipeline) Reindex(ctx context.Context, sourceDir string) (ReindexSummary, error) {
	if !p.tryAcquire() {
		return ReindexSummary{}, ErrReindexRunning
	}
	defer p.release()
	return p.reindex(ctx, sourceDir)
}

// StartReindex acquires the single-run slot and performs the reindex in the
// background. A run already in progress is rejected immediately, never
// queued.
func (p *Pipeline) StartReindex(ctx context.Context, sourceDir string) error {
	if !p.tryAcquire() {
		return ErrReindexRunning
	}
	go func() {
		defer p.release()
		_, _ = p.reindex(ctx, sourceDir)
	}()
	return nil
}

func (p *Pipeline) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	p.state = StateBuilding
	return true
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.running = false
	p.state = StateIdle
	p.mu.Unlock()
}

func (p *Pipeline) reindex(ctx context.Context, sourceDir string) (ReindexSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()
	newCollection := fmt.Sprintf("%s_gen_%d", p.cfg.Alias, start.Unix())

	logger.InfoContext(ctx, "reindex started", "dir", sourceDir, "collection", newCollection)

	fail := func(err error) (ReindexSummary, error) {
		p.setState(StateFailed)
		observability.IndexRunsTotal.WithLabelValues("failed").Inc()

		// Unlinked and safe to drop; an orphan left behind is harmless.
		if delErr := p.store.DeleteCollection(context.WithoutCancel(ctx), newCollection); delErr != nil {
			logger.WarnContext(ctx, "failed to clean up partial collection", "collection", newCollection, "error", delErr)
		}

		summary := ReindexSummary{
			Status:          "failed",
			DurationSeconds: time.Since(start).Seconds(),
		}
		p.mu.Lock()
		p.last = summary
		p.mu.Unlock()
		logger.ErrorContext(ctx, "reindex failed", "error", err)
		return summary, err
	}

	if err := p.store.CreateCollection(ctx, newCollection, p.cfg.VectorSize); err != nil {
		return fail(err)
	}

	indexSummary, err := p.IndexAll(ctx, sourceDir, newCollection)
	if err != nil {
		return fail(err)
	}
	if indexSummary.UnitsProduced == 0 {
		return fail(fmt.Errorf("no units produced from %s", sourceDir))
	}

	p.setState(StateSwapping)

	previous, err := p.store.ResolveAlias(ctx, p.cfg.Alias)
	if err != nil {
		return fail(err)
	}
	if err := p.store.UpdateAlias(ctx, p.cfg.Alias, newCollection); err != nil {
		return fail(err)
	}

	if previous != "" && previous != newCollection {
		if err := p.store.DeleteCollection(ctx, previous); err != nil {
			// The alias already moved; the stale generation only wastes space.
			logger.WarnContext(ctx, "failed to delete previous generation", "collection", previous, "error", err)
		}
	}

	summary := ReindexSummary{
		Status:          "completed",
		FilesProcessed:  indexSummary.FilesProcessed,
		FilesSkipped:    indexSummary.FilesSkipped,
		UnitsProduced:   indexSummary.UnitsProduced,
		DurationSeconds: time.Since(start).Seconds(),
		Collection:      newCollection,
	}
	p.mu.Lock()
	p.last = summary
	p.mu.Unlock()

	observability.IndexRunsTotal.WithLabelValues("completed").Inc()
	logger.InfoContext(ctx, "reindex completed",
		"files", summary.FilesProcessed,
		"units", summary.UnitsProduced,
		"duration_seconds", summary.DurationSeconds,
		"collection", newCollection,
	)
	return summary, nil
}

// unitPayload renders a unit as a store payload. The text itself is stored
// in the payload, so the read path needs no secondary lookup.
func unitPayload(unit ContentUnit) map[string]any {
	payload := map[string]any{
		"text":          unit.Text,
		"source_path":   unit.SourcePath,
		"heading_path":  unit.HeadingPathString(),
		"section_title": unit.SectionTitle(),
		"unit_index":    unit.UnitIndex,
		"unit_kind":     string(unit.UnitKind),
		"token_count":   unit.TokenCount,
	}
	if unit.Language != "" {
		payload["language"] = unit.Language
	}
	return payload
}

// UnitFromPayload rebuilds a ContentUnit from a store payload.
func UnitFromPayload(payload map[string]any) ContentUnit {
	unit := ContentUnit{}
	if text, ok := payload["text"].(string); ok {
		unit.Text = text
	}
	if path, ok := payload["source_path"].(string); ok {
		unit.SourcePath = path
	}
	if hp, ok := payload["heading_path"].(string); ok {
		unit.HeadingPath = SplitHeadingPath(hp)
	}
	if kind, ok := payload["unit_kind"].(string); ok {
		unit.UnitKind = UnitKind(kind)
	}
	if lang, ok := payload["language"].(string); ok {
		unit.Language = lang
	}
	unit.UnitIndex = payloadInt(payload["unit_index"])
	unit.TokenCount = payloadInt(payload["token_count"])
	return unit
}

// payloadInt handles the integer encodings a payload round-trip can produce.
func payloadInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
