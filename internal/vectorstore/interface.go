package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks docqa/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// ErrUnavailable marks store failures that should surface to callers as a
// temporary outage rather than a request error.
var ErrUnavailable = errors.New("vector store unavailable")

// Point is a vector point with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is one scored hit from a similarity search.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// CollectionSnapshot describes one generation of the index.
type CollectionSnapshot struct {
	Name        string `json:"name"`
	AliasTarget bool   `json:"alias_target"`
}

// VectorStore is a similarity store with named, swappable collections.
// Generation collections are an indexing detail; query callers only ever see
// the stable alias.
type VectorStore interface {
	// CreateCollection creates a cosine-distance collection.
	CreateCollection(ctx context.Context, name string, vectorSize int) error

	// DeleteCollection removes a collection. Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to topK hits with score >= minScore, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error)

	// UpdateAlias atomically repoints alias at target; there is no
	// intermediate state in which the alias resolves to neither generation.
	UpdateAlias(ctx context.Context, alias, target string) error

	// ResolveAlias returns the collection an alias points at, or "" if the
	// alias does not exist.
	ResolveAlias(ctx context.Context, alias string) (string, error)

	// PointsCount returns the number of points in a collection.
	PointsCount(ctx context.Context, collection string) (uint64, error)
}
