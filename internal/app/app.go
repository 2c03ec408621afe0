package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"legalrag/internal/config"
	"legalrag/internal/indexer"
	"legalrag/internal/llm"
	"legalrag/internal/rag"
	"legalrag/internal/segmenter"
	"legalrag/internal/splitter"
	"legalrag/internal/storage"
	"legalrag/internal/textnorm"
	"legalrag/internal/vectorstore"
)

// App holds the components shared by the API server and the CLI.
type App struct {
	Config    *config.Config
	Retriever *rag.ParentDocumentRetriever
	Pipeline  *indexer.Pipeline
	Sources   *storage.SourceRepo

	db      *sql.DB
	closers []io.Closer
}

// Option configures New.
type Option func(*options)

type options struct {
	embedder llm.Embedder
}

// WithEmbedder replaces the OpenAI-compatible embeddings client.
func WithEmbedder(embedder llm.Embedder) Option {
	return func(o *options) {
		o.embedder = embedder
	}
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the stores, validates the embedding backend and wires the
// ingestion and retrieval components. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	if err := a.init(ctx, cfg, o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config, o options) error {
	var err error
	a.db, err = storage.New(cfg.DocstorePath())
	if err != nil {
		return err
	}
	if err := storage.Migrate(a.db); err != nil {
		return err
	}
	slog.Info("docstore initialized", "path", cfg.DocstorePath())

	vectors, err := a.openVectorStore(cfg)
	if err != nil {
		return err
	}
	if err := vectors.EnsureCollection(ctx, cfg.VectorCollection, cfg.VectorSize); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	slog.Info("vector collection ready", "backend", cfg.VectorBackend, "collection", cfg.VectorCollection, "vector_size", cfg.VectorSize)

	embedder := o.embedder
	if embedder == nil {
		embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	}
	if err := validateEmbedder(ctx, embedder, cfg.VectorSize); err != nil {
		return err
	}
	slog.Info("embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", cfg.VectorSize)

	fragments, err := splitter.NewFragmentSplitter(cfg.ChildChunkSize, cfg.ChildChunkOverlap)
	if err != nil {
		return err
	}
	slog.Info("fragment splitter configured", "size", fragments.Size(), "overlap", fragments.Overlap())
	index := rag.NewFragmentIndex(embedder, vectors, cfg.VectorCollection, cfg.EmbeddingBatchSize)
	a.Retriever, err = rag.NewParentDocumentRetriever(index, fragments, storage.NewUnitRepo(a.db), cfg.RetrievalK)
	if err != nil {
		return err
	}

	seg, err := segmenter.New(
		segmenter.WithFallbackWindow(cfg.FallbackChunkSize, cfg.FallbackChunkOverlap),
		segmenter.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	normalizer := textnorm.New(textnorm.WithArabicRepair(cfg.RepairArabic))
	a.Sources = storage.NewSourceRepo(a.db)
	a.Pipeline = indexer.NewPipeline(normalizer, seg, a.Retriever, a.Sources,
		indexer.WithSkipUnchanged(cfg.SkipUnchanged))
	return nil
}

func (a *App) openVectorStore(cfg *config.Config) (vectorstore.VectorStore, error) {
	switch cfg.VectorBackend {
	case config.BackendQdrant:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	case config.BackendMemory:
		return vectorstore.NewMemoryStore(cfg.VectorsDir())
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// validateEmbedder fails fast when the backend is unreachable or returns
// vectors of the wrong size.
func validateEmbedder(ctx context.Context, embedder llm.Embedder, size int) error {
	vectors, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("%w: failed to validate embedding client: %w", rag.ErrEmbedding, err)
	}
	if len(vectors) != 1 || len(vectors[0]) != size {
		got := 0
		if len(vectors) > 0 {
			got = len(vectors[0])
		}
		return fmt.Errorf("%w: embedding vector size mismatch: expected %d, got %d", rag.ErrEmbedding, size, got)
	}
	return nil
}

// Close releases the vector store connection and the database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
