package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// External services
	ChatBaseURL        string
	ChatModelName      string
	ChatAPIKey         string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string

	// Vector store
	QdrantURL        string
	CollectionAlias  string
	VectorSize       int

	// Corpus and indexing
	DocsDir           string
	MaxUnitTokens     int
	HeadingSplitDepth int
	EmbedBatchSize    int
	EmbedConcurrency  int

	// Query limits
	TopK               int
	MinScore           float64
	MaxQuestionTokens  int
	MaxSelectionTokens int
	HistoryWindow      int
	QueryTimeout       time.Duration

	// Sessions
	DBPath string

	// HTTP
	APIPort        string
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or any parent up to the
// module root, it is loaded automatically; real environment variables take
// precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up from the working directory looking for a .env next to go.mod.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		ChatBaseURL:        getEnv("CHAT_BASE_URL", "https://api.openai.com"),
		ChatModelName:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
		ChatAPIKey:         getEnv("CHAT_API_KEY", ""),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "https://api.openai.com"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		CollectionAlias:    getEnv("COLLECTION_ALIAS", "docs"),
		DocsDir:            getEnv("DOCS_DIR", "./docs"),
		DBPath:             getEnv("DB_PATH", "./data/docqa.db"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.VectorSize, err = getEnvInt("VECTOR_SIZE", 1536); err != nil {
		return nil, err
	}
	if cfg.MaxUnitTokens, err = getEnvInt("MAX_UNIT_TOKENS", 450); err != nil {
		return nil, err
	}
	if cfg.HeadingSplitDepth, err = getEnvInt("HEADING_SPLIT_DEPTH", 3); err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize, err = getEnvInt("EMBED_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.EmbedConcurrency, err = getEnvInt("EMBED_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getEnvInt("TOP_K", 7); err != nil {
		return nil, err
	}
	if cfg.MaxQuestionTokens, err = getEnvInt("MAX_QUESTION_TOKENS", 256); err != nil {
		return nil, err
	}
	if cfg.MaxSelectionTokens, err = getEnvInt("MAX_SELECTION_TOKENS", 2000); err != nil {
		return nil, err
	}
	if cfg.HistoryWindow, err = getEnvInt("HISTORY_WINDOW", 6); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 5); err != nil {
		return nil, err
	}

	if cfg.MinScore, err = getEnvFloat("MIN_SCORE", 0.7); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", 2.0); err != nil {
		return nil, err
	}

	timeoutSecs, err := getEnvInt("QUERY_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.QueryTimeout = time.Duration(timeoutSecs) * time.Second

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}
	if cfg.MaxUnitTokens <= 0 {
		return nil, fmt.Errorf("MAX_UNIT_TOKENS must be greater than 0")
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, fmt.Errorf("MIN_SCORE must be between 0 and 1")
	}

	// Create the data directory for the sessions DB if needed.
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}
