package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"legalrag/internal/contextutil"
	"legalrag/internal/indexer"
)

// maxIngestBytes bounds the request body of a text ingestion.
const maxIngestBytes = 32 << 20

// TextIngester indexes raw document text.
type TextIngester interface {
	IngestText(ctx context.Context, source, text string) (indexer.Result, error)
}

// IngestHandler handles HTTP requests for ingesting document text.
type IngestHandler struct {
	ingester TextIngester
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingester TextIngester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

// IngestRequest represents the HTTP request payload for ingestion.
//
// swagger:model IngestRequest
type IngestRequest struct {
	// Source is the document filename recorded in unit metadata.
	Source string `json:"source"`
	// Text is the extracted document text.
	Text string `json:"text"`
}

// ServeHTTP handles HTTP requests for ingestion.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" || filepath.Base(source) != source {
		logger.WarnContext(ctx, "invalid source in request", "source", req.Source)
		writeError(w, http.StatusBadRequest, "Source must be a file name")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		logger.WarnContext(ctx, "empty text in request", "source", source)
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	result, err := h.ingester.IngestText(ctx, source, req.Text)
	if err != nil {
		handleRetrievalError(ctx, w, err, "Failed to ingest document")
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}
