package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks legalrag/internal/llm Embedder

import "context"

// Embedder turns texts into vectors of a fixed dimension, one per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
