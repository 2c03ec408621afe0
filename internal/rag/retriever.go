package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_retriever.go -package=mocks legalrag/internal/rag Retriever

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"legalrag/internal/contextutil"
	"legalrag/internal/document"
	"legalrag/internal/splitter"
	"legalrag/internal/storage"
)

// DefaultK is the number of fragments searched per query.
const DefaultK = 5

// Retriever indexes units and returns the units relevant to a query.
type Retriever interface {
	// AddDocuments indexes units and returns their ids in input order.
	AddDocuments(ctx context.Context, units []document.Unit) ([]string, error)
	// Retrieve returns the units whose fragments best match query, best first.
	Retrieve(ctx context.Context, query string) ([]document.Unit, error)
}

// Counts reports the size of the index.
type Counts struct {
	Units     int `json:"units"`
	Fragments int `json:"fragments"`
}

// ParentDocumentRetriever searches small fragments and returns their enclosing units.
// Writers are serialized; readers run concurrently and observe a batch either
// entirely or not at all.
type ParentDocumentRetriever struct {
	mu       sync.RWMutex
	index    *FragmentIndex
	splitter *splitter.FragmentSplitter
	parents  storage.UnitStore
	k        int
}

// NewParentDocumentRetriever creates a retriever that searches k fragments per query.
func NewParentDocumentRetriever(index *FragmentIndex, fragmentSplitter *splitter.FragmentSplitter, parents storage.UnitStore, k int) (*ParentDocumentRetriever, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0, got %d", k)
	}
	return &ParentDocumentRetriever{
		index:    index,
		splitter: fragmentSplitter,
		parents:  parents,
		k:        k,
	}, nil
}

// AddDocuments assigns ids to units that have none, splits them into
// fragments and embeds every fragment before anything is written. Units are
// then committed to the parent store and only afterwards published to the
// vector index, so a searchable fragment always has a stored parent.
// An empty batch is a no-op.
func (r *ParentDocumentRetriever) AddDocuments(ctx context.Context, units []document.Unit) ([]string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(units) == 0 {
		return nil, nil
	}

	batch := make([]document.Unit, len(units))
	ids := make([]string, len(units))
	var fragments []document.Fragment
	for i, u := range units {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		batch[i] = u
		ids[i] = u.ID

		parts, err := r.splitter.Split(u)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, parts...)
	}

	embedded, err := r.index.Embed(ctx, fragments)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed fragments", "units", len(batch), "fragments", len(fragments), "error", err)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.parents.PutMany(ctx, batch); err != nil {
		logger.ErrorContext(ctx, "failed to store units", "units", len(batch), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrParentStore, err)
	}
	if err := r.index.Publish(ctx, embedded); err != nil {
		// Stored units without fragments are never returned by Retrieve.
		logger.ErrorContext(ctx, "failed to publish fragments", "units", len(batch), "fragments", len(embedded), "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "indexed units", "units", len(batch), "fragments", len(embedded))
	return ids, nil
}

// Retrieve searches the k nearest fragments and returns their parent units
// in order of first appearance among the hits. Parents missing from the
// store are logged and skipped. A blank query or an empty index yields an
// empty result.
func (r *ParentDocumentRetriever) Retrieve(ctx context.Context, query string) ([]document.Unit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(query) == "" {
		return []document.Unit{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hits, err := r.index.Search(ctx, query, r.k)
	if err != nil {
		logger.ErrorContext(ctx, "fragment search failed", "error", err)
		return nil, err
	}

	ids := uniqueUnitIDs(hits)
	if len(ids) == 0 {
		logger.DebugContext(ctx, "no fragments matched")
		return []document.Unit{}, nil
	}

	stored, err := r.parents.GetMany(ctx, ids)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load units", "ids", len(ids), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrParentStore, err)
	}

	units := make([]document.Unit, 0, len(ids))
	for _, id := range ids {
		u, ok := stored[id]
		if !ok {
			logger.WarnContext(ctx, "unit missing from parent store", "unit_id", id)
			continue
		}
		units = append(units, u)
	}

	logger.DebugContext(ctx, "retrieved units", "fragments", len(hits), "units", len(units))
	return units, nil
}

// Counts returns the number of stored units and fragments.
func (r *ParentDocumentRetriever) Counts(ctx context.Context) (Counts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units, err := r.parents.Count(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %w", ErrParentStore, err)
	}
	fragments, err := r.index.Size(ctx)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Units: units, Fragments: fragments}, nil
}

// uniqueUnitIDs returns the unit ids of hits without repeats, keeping the
// position of each id's first occurrence.
func uniqueUnitIDs(hits []ScoredFragment) []string {
	seen := make(map[string]struct{}, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		id := h.Fragment.UnitID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
