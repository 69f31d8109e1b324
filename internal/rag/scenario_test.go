package rag

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/vectorstore"
)

// keywordEmbedder projects keyword hits onto fixed dimensions plus a bias
// dimension, so similarity scores are reproducible without a model.
type keywordEmbedder struct {
	keywords []string
}

func (e keywordEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(e.keywords)+1)
		for j, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				vec[j] = 1
			}
		}
		vec[len(e.keywords)] = 1
		out[i] = unitVector(vec)
	}
	return out, nil
}

func unitVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// memoryStore is an in-memory VectorStore, enough to run the full
// index-then-query flow in one process.
type memoryStore struct {
	collections map[string][]vectorstore.Point
	aliases     map[string]string
	searches    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		collections: map[string][]vectorstore.Point{},
		aliases:     map[string]string{},
	}
}

func (m *memoryStore) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	m.collections[name] = nil
	return nil
}

func (m *memoryStore) DeleteCollection(ctx context.Context, name string) error {
	delete(m.collections, name)
	return nil
}

func (m *memoryStore) ListCollections(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	return names, nil
}

func (m *memoryStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	m.collections[collection] = append(m.collections[collection], points...)
	return nil
}

func (m *memoryStore) Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]vectorstore.SearchResult, error) {
	m.searches++
	if target, ok := m.aliases[collection]; ok {
		collection = target
	}
	var results []vectorstore.SearchResult
	for _, point := range m.collections[collection] {
		// Stored vectors are unit length, so the dot product is cosine.
		var score float32
		for i := range vector {
			score += vector[i] * point.Vector[i]
		}
		if score < minScore {
			continue
		}
		results = append(results, vectorstore.SearchResult{ID: point.ID, Score: score, Payload: point.Payload})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *memoryStore) UpdateAlias(ctx context.Context, alias, target string) error {
	m.aliases[alias] = target
	return nil
}

func (m *memoryStore) ResolveAlias(ctx context.Context, alias string) (string, error) {
	return m.aliases[alias], nil
}

func (m *memoryStore) PointsCount(ctx context.Context, collection string) (uint64, error) {
	return uint64(len(m.collections[collection])), nil
}

type scriptedChat struct {
	answer       string
	lastSystem   string
	lastMessages []llm.Message
	calls        int
}

func (c *scriptedChat) Complete(ctx context.Context, systemPrompt string, messages []llm.Message, temperature float64) (string, error) {
	c.calls++
	c.lastSystem = systemPrompt
	c.lastMessages = messages
	return c.answer, nil
}

func writeFixtureCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"concepts.md": "# Concepts\n\nCore vocabulary for the system.\n\n## Nodes\n\nA node is a single element in the graph. Each node stores one value.\n\n## Edges\n\nAn edge connects two related entries.\n",
		"indexing.md": "# Indexing\n\nThe pipeline reads markdown files and embeds them.\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}
	}
	return dir
}

func newFixtureIndex(t *testing.T) (*memoryStore, keywordEmbedder) {
	t.Helper()

	embedder := keywordEmbedder{keywords: []string{"node", "edge", "pipeline"}}
	store := newMemoryStore()
	pipeline := indexer.NewPipeline(embedder, store, indexer.PipelineConfig{
		Alias:            "docs",
		VectorSize:       4,
		MaxUnitTokens:    450,
		SplitDepth:       3,
		EmbedBatchSize:   2,
		EmbedConcurrency: 2,
	})

	summary, err := pipeline.Reindex(context.Background(), writeFixtureCorpus(t))
	if err != nil {
		t.Fatalf("Reindex() unexpected error: %v", err)
	}
	if summary.FilesProcessed != 2 {
		t.Fatalf("FilesProcessed = %d, want 2", summary.FilesProcessed)
	}
	return store, embedder
}

func TestGlobalQueryAgainstIndexedCorpus(t *testing.T) {
	store, embedder := newFixtureIndex(t)

	retriever := NewRetriever(embedder, store, "docs", 7, 0.75)
	chat := &scriptedChat{answer: "A node is a single element in the graph."}
	composer := NewComposer(chat, "")

	units, err := retriever.RetrieveGlobal(context.Background(), "What is a node?", 0, 0)
	if err != nil {
		t.Fatalf("RetrieveGlobal() unexpected error: %v", err)
	}
	if len(units) == 0 {
		t.Fatal("RetrieveGlobal() returned no units for an on-corpus question")
	}
	for _, unit := range units {
		if !strings.Contains(strings.ToLower(unit.Text), "node") {
			t.Errorf("retrieved off-topic unit: %q", unit.Text)
		}
	}

	result, err := composer.ComposeGlobal(context.Background(), "What is a node?", nil, units)
	if err != nil {
		t.Fatalf("ComposeGlobal() unexpected error: %v", err)
	}
	if result.UnitsUsed < 1 {
		t.Errorf("UnitsUsed = %d, want >= 1", result.UnitsUsed)
	}
	if len(result.Citations) == 0 {
		t.Fatal("got no citations, want at least one")
	}
	found := false
	for _, c := range result.Citations {
		if c.SourcePath == "concepts.md" {
			found = true
		}
		if c.SourcePath == "indexing.md" {
			t.Errorf("citation names the off-topic file: %+v", c)
		}
	}
	if !found {
		t.Errorf("no citation names concepts.md: %+v", result.Citations)
	}
	if len(chat.lastMessages) == 0 || !strings.Contains(chat.lastMessages[len(chat.lastMessages)-1].Content, "What is a node?") {
		t.Errorf("prompt missing the question: %+v", chat.lastMessages)
	}
}

func TestSelectionQueryAgainstIndexedCorpus(t *testing.T) {
	store, embedder := newFixtureIndex(t)
	searchesAfterIndex := store.searches

	retriever := NewRetriever(embedder, store, "docs", 7, 0.75)
	chat := &scriptedChat{answer: "It describes a handshake."}
	composer := NewComposer(chat, "")

	units := retriever.RetrieveSelection("The handshake happens before any payload is sent.")
	result, err := composer.ComposeSelection(context.Background(), "What does this paragraph describe?", units)
	if err != nil {
		t.Fatalf("ComposeSelection() unexpected error: %v", err)
	}

	if store.searches != searchesAfterIndex {
		t.Errorf("selection query ran %d store searches, want 0", store.searches-searchesAfterIndex)
	}
	if len(result.Citations) != 0 {
		t.Errorf("got %d citations, want 0", len(result.Citations))
	}
	if !strings.Contains(chat.lastMessages[0].Content, "handshake") {
		t.Errorf("prompt missing the selected text: %+v", chat.lastMessages)
	}
}
