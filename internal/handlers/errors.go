package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"legalrag/internal/contextutil"
	"legalrag/internal/rag"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// handleRetrievalError maps retrieval and indexing errors to HTTP status codes.
func handleRetrievalError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "retrieval error", "error", err)

	switch {
	case errors.Is(err, rag.ErrEmbedding):
		writeError(w, http.StatusBadGateway, "Embedding service unavailable")
	case errors.Is(err, rag.ErrVectorIndex):
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
