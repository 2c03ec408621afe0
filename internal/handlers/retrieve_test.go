package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"legalrag/internal/document"
	"legalrag/internal/rag"
	rag_mocks "legalrag/internal/rag/mocks"
)

func TestRetrieveHandler(t *testing.T) {
	article := document.Unit{
		ID:       "u-2",
		Title:    "Article 2",
		Body:     "Source: penal_code.txt\nSection: Article 2\n\nThe fine is doubled for repeat offenders.",
		Metadata: document.NewMetadata("penal_code.txt", "Article 2"),
	}

	tests := []struct {
		name           string
		method         string
		body           string
		setup          func(m *rag_mocks.MockRetriever)
		expectedStatus int
		expectedUnits  int
		expectedError  string
	}{
		{
			name:   "returns units",
			method: http.MethodPost,
			body:   `{"question":"penalty for repeat offenders"}`,
			setup: func(m *rag_mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "penalty for repeat offenders").Return([]document.Unit{article}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedUnits:  1,
		},
		{
			name:   "empty index returns empty list",
			method: http.MethodPost,
			body:   `{"question":"anything"}`,
			setup: func(m *rag_mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "anything").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedUnits:  0,
		},
		{
			name:           "blank question",
			method:         http.MethodPost,
			body:           `{"question":"   "}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Question is required",
		},
		{
			name:           "invalid body",
			method:         http.MethodPost,
			body:           `{"question":`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request body",
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:   "embedding backend down",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setup: func(m *rag_mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "q").Return(nil, fmt.Errorf("%w: connection refused", rag.ErrEmbedding))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:   "vector store down",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setup: func(m *rag_mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "q").Return(nil, fmt.Errorf("%w: unavailable", rag.ErrVectorIndex))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:   "parent store failure",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setup: func(m *rag_mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "q").Return(nil, fmt.Errorf("%w: %w", rag.ErrParentStore, errors.New("locked")))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to retrieve documents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			retriever := rag_mocks.NewMockRetriever(ctrl)
			if tt.setup != nil {
				tt.setup(retriever)
			}

			handler := NewRetrieveHandler(retriever)
			req := httptest.NewRequest(tt.method, "/api/retrieve", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			if tt.expectedStatus == http.StatusOK {
				var resp RetrieveResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Units == nil || len(resp.Units) != tt.expectedUnits {
					t.Errorf("expected %d units, got %v", tt.expectedUnits, resp.Units)
				}
				return
			}

			if tt.expectedError != "" {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				if resp.Error != tt.expectedError {
					t.Errorf("expected error %q, got %q", tt.expectedError, resp.Error)
				}
			}
		})
	}
}

func TestRetrieveHandler_ResponseShape(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any()).Return([]document.Unit{{
		ID:       "u-1",
		Title:    "المادة الأولى",
		Body:     "Source: labor.txt\nSection: المادة الأولى\n\nيسمى هذا النظام نظام العمل.",
		Metadata: document.NewMetadata("labor.txt", "المادة الأولى"),
	}}, nil)

	handler := NewRetrieveHandler(retriever)
	req := httptest.NewRequest(http.MethodPost, "/api/retrieve", bytes.NewBufferString(`{"question":"نظام العمل"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var raw map[string][]map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	unit := raw["units"][0]
	meta, ok := unit["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing: %v", unit)
	}
	if meta["source"] != "labor.txt" || meta["subject"] != "labor" || meta["article"] != "المادة الأولى" {
		t.Errorf("unexpected metadata %v", meta)
	}
	if unit["id"] != "u-1" {
		t.Errorf("unexpected id %v", unit["id"])
	}
}
