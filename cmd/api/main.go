package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"docqa/internal/config"
	"docqa/internal/contextutil"
	"docqa/internal/handlers"
	"docqa/internal/http"
	"docqa/internal/indexer"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/service"
	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	sessionRepo := storage.NewSessionRepo(db)

	ctx := contextutil.WithLogger(context.Background(), logger)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.VectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.VectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.VectorSize)

	// Create indexing pipeline
	pipeline := indexer.NewPipeline(embedder, vectorStore, indexer.PipelineConfig{
		Alias:            cfg.CollectionAlias,
		VectorSize:       cfg.VectorSize,
		MaxUnitTokens:    cfg.MaxUnitTokens,
		SplitDepth:       cfg.HeadingSplitDepth,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
	})

	// Create chat client and the retrieve/compose pair
	chatClient := llm.NewChatClient(cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatModelName)
	retriever := rag.NewRetriever(embedder, vectorStore, cfg.CollectionAlias, cfg.TopK, float32(cfg.MinScore))
	composer := rag.NewComposer(chatClient, cfg.DocsDir)

	querySvc := service.NewQueryService(retriever, composer, sessionRepo, service.QueryServiceOptions{
		MaxQuestionTokens:  cfg.MaxQuestionTokens,
		MaxSelectionTokens: cfg.MaxSelectionTokens,
		HistoryWindow:      cfg.HistoryWindow,
		Timeout:            cfg.QueryTimeout,
	})
	slog.Info("Query service initialized")

	// Create router with dependencies
	deps := &http.Deps{
		Query:    handlers.NewQueryHandler(querySvc),
		Admin:    handlers.NewAdminHandler(pipeline, vectorStore, cfg.CollectionAlias, cfg.DocsDir, logger),
		Sessions: handlers.NewSessionHandler(sessionRepo, 0),
		Health:   handlers.NewHealthHandler(vectorStore, cfg.CollectionAlias),
		Limiter:  http.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:   logger,
	}
	router := http.NewRouter(deps)

	// Build the first index generation in the background when the alias
	// does not resolve yet; an existing index keeps serving untouched.
	go func() {
		current, err := vectorStore.ResolveAlias(ctx, cfg.CollectionAlias)
		if err != nil {
			slog.Error("Failed to check index alias", "error", err)
			return
		}
		if current != "" {
			slog.Info("Index alias already resolves", "collection", current)
			return
		}
		slog.Info("Starting initial index build", "dir", cfg.DocsDir)
		if err := pipeline.StartReindex(ctx, cfg.DocsDir); err != nil {
			slog.Error("Initial index build did not start", "error", err)
		}
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("Chat configuration", "base_url", cfg.ChatBaseURL, "model", cfg.ChatModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
