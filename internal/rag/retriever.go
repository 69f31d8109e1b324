package rag

import (
	"context"
	"fmt"
	"sort"

	"docqa/internal/contextutil"
	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/vectorstore"
)

const (
	// DefaultTopK bounds how many units a global query retrieves.
	DefaultTopK = 7
	// DefaultMinScore is the cosine similarity floor for retrieval hits.
	DefaultMinScore = 0.7
)

// Retriever resolves the units a query is answered from. Global mode
// searches the aliased collection; selection mode wraps the caller's text
// and, by construction, performs no store access at all.
type Retriever struct {
	embedder llm.Embedder
	store    vectorstore.VectorStore
	alias    string
	topK     int
	minScore float32
}

// NewRetriever creates a retriever over the stable alias.
func NewRetriever(embedder llm.Embedder, store vectorstore.VectorStore, alias string, topK int, minScore float32) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		alias:    alias,
		topK:     topK,
		minScore: minScore,
	}
}

// RetrieveGlobal embeds the query and returns at most topK units scoring at
// least minScore, best first. Ties are broken by ascending unit index so
// result order is deterministic. Zero topK/minScore use the retriever
// defaults.
func (r *Retriever) RetrieveGlobal(ctx context.Context, query string, topK int, minScore float32) ([]indexer.ContentUnit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		topK = r.topK
	}
	if minScore <= 0 {
		minScore = r.minScore
	}

	embeddings, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	results, err := r.store.Search(ctx, r.alias, embeddings[0], topK, minScore)
	if err != nil {
		return nil, err
	}

	type scoredUnit struct {
		unit  indexer.ContentUnit
		score float32
	}
	scored := make([]scoredUnit, 0, len(results))
	for _, result := range results {
		if result.Score < minScore {
			continue
		}
		scored = append(scored, scoredUnit{
			unit:  indexer.UnitFromPayload(result.Payload),
			score: result.Score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].unit.UnitIndex < scored[j].unit.UnitIndex
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	units := make([]indexer.ContentUnit, len(scored))
	for i, s := range scored {
		units[i] = s.unit
	}

	logger.InfoContext(ctx, "global retrieval completed", "results", len(units), "top_k", topK, "min_score", minScore)
	return units, nil
}

// RetrieveSelection wraps the caller-supplied text in a single synthetic
// unit. There is no store handle on this path, so corpus content cannot
// leak into a selection answer no matter what the caller sends.
func (r *Retriever) RetrieveSelection(selectedText string) []indexer.ContentUnit {
	return []indexer.ContentUnit{
		{
			Text:       selectedText,
			UnitKind:   indexer.KindSelection,
			TokenCount: indexer.CountTokens(selectedText),
		},
	}
}
