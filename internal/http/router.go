package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"legalrag/internal/handlers"
	"legalrag/internal/rag"
)

// requestTimeout bounds synchronous API requests. Ingestion of large texts
// embeds every fragment inline, so it gets the longer limit.
const (
	requestTimeout = 60 * time.Second
	ingestTimeout  = 10 * time.Minute
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Retriever rag.Retriever
	Counter   handlers.Counter
	Ingester  handlers.TextIngester
	Indexer   handlers.Indexer
	SourceDir string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Counter))
		r.With(middleware.Timeout(requestTimeout)).
			Method(http.MethodPost, "/retrieve", handlers.NewRetrieveHandler(deps.Retriever))
		r.With(middleware.Timeout(ingestTimeout)).
			Method(http.MethodPost, "/ingest", handlers.NewIngestHandler(deps.Ingester))
		r.Method(http.MethodPost, "/index", handlers.NewIndexHandler(deps.Indexer, deps.SourceDir))
	})

	return r
}
