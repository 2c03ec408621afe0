package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Vector storage backends.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// Config holds all configuration for the application.
type Config struct {
	DataDir   string
	SourceDir string

	VectorBackend    string
	QdrantURL        string
	VectorCollection string
	VectorSize       int

	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingBatchSize int

	RetrievalK           int
	ChildChunkSize       int
	ChildChunkOverlap    int
	FallbackChunkSize    int
	FallbackChunkOverlap int
	RepairArabic         bool
	// SkipUnchanged skips files whose content is unchanged since their last
	// ingestion. Off by default: re-ingestion adds a fresh set of units.
	SkipUnchanged bool

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// DocstorePath is the SQLite file holding the parent units.
func (c *Config) DocstorePath() string {
	return filepath.Join(c.DataDir, "docstore.db")
}

// VectorsDir is where the memory backend keeps its snapshots.
func (c *Config) VectorsDir() string {
	return filepath.Join(c.DataDir, "vectors")
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
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
		DataDir:            getEnv("DATA_DIR", "./saudi_legal_db"),
		SourceDir:          getEnv("SOURCE_DIR", "./data"),
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", BackendMemory)),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		VectorCollection:   getEnv("VECTOR_COLLECTION", "saudi_legal_docs"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "bge-m3"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if cfg.VectorBackend != BackendMemory && cfg.VectorBackend != BackendQdrant {
		return nil, fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendMemory, BackendQdrant, cfg.VectorBackend)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	// VECTOR_SIZE must match the output dimension of the embeddings model.
	// Changing it requires recreating the collection.
	vectorSizeStr := getEnv("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	if cfg.VectorSize, err = getPositiveInt("VECTOR_SIZE", vectorSizeStr); err != nil {
		return nil, err
	}

	ints := []struct {
		key  string
		def  string
		dst  *int
		zero bool
	}{
		{"EMBEDDING_BATCH_SIZE", "32", &cfg.EmbeddingBatchSize, false},
		{"RETRIEVAL_K", "5", &cfg.RetrievalK, false},
		{"CHILD_CHUNK_SIZE", "400", &cfg.ChildChunkSize, false},
		{"CHILD_CHUNK_OVERLAP", "100", &cfg.ChildChunkOverlap, true},
		{"FALLBACK_CHUNK_SIZE", "1000", &cfg.FallbackChunkSize, false},
		{"FALLBACK_CHUNK_OVERLAP", "150", &cfg.FallbackChunkOverlap, true},
	}
	for _, v := range ints {
		raw := getEnv(v.key, v.def)
		if v.zero {
			*v.dst, err = getNonNegativeInt(v.key, raw)
		} else {
			*v.dst, err = getPositiveInt(v.key, raw)
		}
		if err != nil {
			return nil, err
		}
	}
	if cfg.ChildChunkOverlap >= cfg.ChildChunkSize {
		return nil, fmt.Errorf("CHILD_CHUNK_OVERLAP (%d) must be smaller than CHILD_CHUNK_SIZE (%d)", cfg.ChildChunkOverlap, cfg.ChildChunkSize)
	}
	if cfg.FallbackChunkOverlap >= cfg.FallbackChunkSize {
		return nil, fmt.Errorf("FALLBACK_CHUNK_OVERLAP (%d) must be smaller than FALLBACK_CHUNK_SIZE (%d)", cfg.FallbackChunkOverlap, cfg.FallbackChunkSize)
	}

	if cfg.RepairArabic, err = strconv.ParseBool(getEnv("REPAIR_ARABIC", "false")); err != nil {
		return nil, fmt.Errorf("REPAIR_ARABIC must be a boolean: %w", err)
	}

	if cfg.SkipUnchanged, err = strconv.ParseBool(getEnv("SKIP_UNCHANGED", "false")); err != nil {
		return nil, fmt.Errorf("SKIP_UNCHANGED must be a boolean: %w", err)
	}

	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
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

func getPositiveInt(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getNonNegativeInt(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return n, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}
