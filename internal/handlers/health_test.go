package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"legalrag/internal/rag"
)

type fakeCounter struct {
	counts rag.Counts
	err    error
}

func (f fakeCounter) Counts(context.Context) (rag.Counts, error) {
	return f.counts, f.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		counter        fakeCounter
		method         string
		expectedStatus int
		expectedState  string
	}{
		{
			name:           "healthy",
			counter:        fakeCounter{counts: rag.Counts{Units: 2, Fragments: 5}},
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedState:  "healthy",
		},
		{
			name:           "unhealthy",
			counter:        fakeCounter{err: errors.New("collection not found")},
			method:         http.MethodGet,
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unhealthy",
		},
		{
			name:           "wrong method",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.counter)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/health", nil))

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedState == "" {
				return
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.expectedState {
				t.Errorf("expected status %q, got %q", tt.expectedState, resp.Status)
			}
			if tt.expectedState == "healthy" {
				if resp.Index == nil || *resp.Index != tt.counter.counts {
					t.Errorf("expected counts %+v, got %+v", tt.counter.counts, resp.Index)
				}
			} else if len(resp.Issues) == 0 {
				t.Error("expected issues for unhealthy status")
			}
		})
	}
}
