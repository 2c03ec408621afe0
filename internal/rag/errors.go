package rag

import "errors"

// Failure classes of the retrieval core. Errors returned by this package wrap
// one of these so callers can branch with errors.Is.
var (
	// ErrEmbedding is returned when the embedding backend fails or returns malformed vectors.
	ErrEmbedding = errors.New("embedding failed")
	// ErrVectorIndex is returned when the vector store rejects a write or a search.
	ErrVectorIndex = errors.New("vector index failed")
	// ErrParentStore is returned when units cannot be written to or read from the parent store.
	ErrParentStore = errors.New("parent store failed")
)
