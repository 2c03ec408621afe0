package handlers

import (
	"context"
	"errors"
	"net/http"

	"legalrag/internal/contextutil"
	"legalrag/internal/indexer"
)

// Indexer ingests every supported file under a directory in the background.
// StartIngestAll returns indexer.ErrIngestionRunning when a run is already in
// progress, whoever started it.
type Indexer interface {
	StartIngestAll(ctx context.Context, root string, done func(*indexer.Stats, error)) error
}

// IndexHandler handles HTTP requests for triggering ingestion of the source folder.
type IndexHandler struct {
	indexer   Indexer
	sourceDir string
}

// NewIndexHandler creates a new IndexHandler for sourceDir.
func NewIndexHandler(idx Indexer, sourceDir string) *IndexHandler {
	return &IndexHandler{
		indexer:   idx,
		sourceDir: sourceDir,
	}
}

// IndexResponse represents the response from the index endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP starts ingestion in the background and returns 202 Accepted.
// A request made while a run is in progress gets 409 Conflict.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// The run outlives the request, so it gets a fresh context.
	runCtx := contextutil.WithLogger(context.Background(), logger)
	err := h.indexer.StartIngestAll(runCtx, h.sourceDir, func(stats *indexer.Stats, err error) {
		if err != nil {
			logger.ErrorContext(runCtx, "ingestion completed with errors", "error", err)
			return
		}
		logger.InfoContext(runCtx, "ingestion completed successfully", "units", stats.UnitsIndexed)
	})
	if errors.Is(err, indexer.ErrIngestionRunning) {
		logger.WarnContext(ctx, "ingestion already running")
		writeError(w, http.StatusConflict, "Ingestion already running")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to start ingestion", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start ingestion")
		return
	}

	logger.InfoContext(ctx, "ingestion triggered via API", "source_dir", h.sourceDir)
	writeJSON(ctx, w, http.StatusAccepted, IndexResponse{
		Message: "Ingestion started. Check server logs for progress.",
		Status:  "accepted",
	})
}
