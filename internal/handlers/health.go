package handlers

import (
	"context"
	"net/http"
	"time"

	"legalrag/internal/contextutil"
	"legalrag/internal/rag"
)

// Counter reports the size of the index.
type Counter interface {
	Counts(ctx context.Context) (rag.Counts, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	counter            Counter
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(counter Counter) *HealthHandler {
	return &HealthHandler{
		counter:            counter,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Index size, present when the stores are reachable
	Index *rag.Counts `json:"index,omitempty"`

	// List of issues (only present if status is unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
// Returns 200 OK if both stores answer, 503 Service Unavailable otherwise.
//
// swagger:route GET /api/health healthCheck
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	httpStatus := http.StatusOK

	counts, err := h.counter.Counts(checkCtx)
	if err != nil {
		logger.WarnContext(ctx, "index health check failed", "error", err)
		response.Status = "unhealthy"
		response.Issues = []string{"index_unavailable"}
		httpStatus = http.StatusServiceUnavailable
	} else {
		response.Index = &counts
	}

	writeJSON(ctx, w, httpStatus, response)
}
