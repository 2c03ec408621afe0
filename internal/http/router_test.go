package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"legalrag/internal/document"
	"legalrag/internal/indexer"
	"legalrag/internal/rag"
	"legalrag/internal/rag/mocks"
)

type stubCounter struct{}

func (stubCounter) Counts(context.Context) (rag.Counts, error) {
	return rag.Counts{Units: 1, Fragments: 1}, nil
}

type stubIngester struct{}

func (stubIngester) IngestText(_ context.Context, source, _ string) (indexer.Result, error) {
	return indexer.Result{Source: source, UnitIDs: []string{"u-1"}}, nil
}

func (stubIngester) StartIngestAll(_ context.Context, _ string, done func(*indexer.Stats, error)) error {
	done(&indexer.Stats{}, nil)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockRetriever) {
	t.Helper()
	ctrl := gomock.NewController(t)
	retriever := mocks.NewMockRetriever(ctrl)

	router := NewRouter(&Deps{
		Retriever: retriever,
		Counter:   stubCounter{},
		Ingester:  stubIngester{},
		Indexer:   stubIngester{},
		SourceDir: t.TempDir(),
	})
	if router == nil {
		t.Fatal("NewRouter() returned nil")
	}
	return router, retriever
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		setup      func(m *mocks.MockRetriever)
		wantStatus int
	}{
		{
			name:       "GET /api/health",
			method:     http.MethodGet,
			path:       "/api/health",
			wantStatus: http.StatusOK,
		},
		{
			name:   "POST /api/retrieve",
			method: http.MethodPost,
			path:   "/api/retrieve",
			body:   `{"question":"penalty"}`,
			setup: func(m *mocks.MockRetriever) {
				m.EXPECT().Retrieve(gomock.Any(), "penalty").Return([]document.Unit{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST /api/retrieve bad body",
			method:     http.MethodPost,
			path:       "/api/retrieve",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/retrieve method not allowed",
			method:     http.MethodGet,
			path:       "/api/retrieve",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "POST /api/ingest",
			method:     http.MethodPost,
			path:       "/api/ingest",
			body:       `{"source":"a.txt","text":"Article 1\nThe penalty is a fine."}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST /api/index",
			method:     http.MethodPost,
			path:       "/api/index",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/unknown",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, retriever := newTestRouter(t)
			if tt.setup != nil {
				tt.setup(retriever)
			}

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	router, retriever := newTestRouter(t)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) ([]document.Unit, error) {
			panic("boom")
		})

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve", strings.NewReader(`{"question":"q"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Router panic status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
}
