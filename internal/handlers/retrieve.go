package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"legalrag/internal/contextutil"
	"legalrag/internal/document"
	"legalrag/internal/rag"
)

// maxQuestionBytes bounds the request body of a retrieval query.
const maxQuestionBytes = 64 << 10

// RetrieveHandler handles HTTP requests for retrieving legal units.
type RetrieveHandler struct {
	retriever rag.Retriever
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(retriever rag.Retriever) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever}
}

// RetrieveRequest represents the HTTP request payload for retrieval.
//
// swagger:model RetrieveRequest
type RetrieveRequest struct {
	Question string `json:"question"`
}

// RetrieveResponse represents the HTTP response payload for retrieval.
//
// swagger:model RetrieveResponse
type RetrieveResponse struct {
	// Units whose fragments best match the question, best first.
	Units []document.Unit `json:"units"`
}

// ServeHTTP handles HTTP requests for retrieval.
//
// swagger:route POST /api/retrieve retrieveUnits
//
// # Retrieve the legal articles relevant to a question
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Matching units in rank order
//	  schema:
//	    "$ref": "#/definitions/RetrieveResponse"
//	'400':
//	  description: Bad request (missing question)
//	'502':
//	  description: Embedding service unavailable
//	'503':
//	  description: Vector store unavailable
func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RetrieveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	units, err := h.retriever.Retrieve(ctx, req.Question)
	if err != nil {
		handleRetrievalError(ctx, w, err, "Failed to retrieve documents")
		return
	}
	if units == nil {
		units = []document.Unit{}
	}

	logger.InfoContext(ctx, "retrieval completed", "units", len(units))
	writeJSON(ctx, w, http.StatusOK, RetrieveResponse{Units: units})
}
