package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"legalrag/internal/contextutil"
)

// snapshotVersion is the on-disk format of a collection snapshot.
const snapshotVersion = 1

// MemoryStore implements VectorStore with brute-force dot-product search.
// Vectors are expected to be L2-normalized so the dot product is the cosine similarity.
// When dir is set, every collection is persisted as <dir>/<collection>.json
// after each write and loaded on first use.
type MemoryStore struct {
	mu          sync.RWMutex
	dir         string
	collections map[string]*memCollection
}

type memCollection struct {
	VectorSize int           `json:"vector_size"`
	Points     []memoryPoint `json:"points"`
	index      map[string]int
}

type memoryPoint struct {
	ID   string         `json:"id"`
	Vec  []float32      `json:"vector"`
	Meta map[string]any `json:"payload,omitempty"`
}

type snapshot struct {
	Version int `json:"version"`
	*memCollection
}

// NewMemoryStore creates a memory store persisted under dir.
// An empty dir keeps everything in memory only.
func NewMemoryStore(dir string) (*MemoryStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector directory: %w", err)
		}
	}
	return &MemoryStore{
		dir:         dir,
		collections: make(map[string]*memCollection),
	}, nil
}

// EnsureCollection loads or creates the collection and validates its vector size.
func (s *MemoryStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collectionLocked(collection)
	if err == nil {
		if c.VectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.VectorSize)
		}
		return nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	c = &memCollection{VectorSize: vectorSize, index: make(map[string]int)}
	if err := s.persistLocked(collection, c); err != nil {
		return err
	}
	s.collections[collection] = c
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "created collection", "collection", collection, "vector_size", vectorSize)
	return nil
}

// Upsert inserts or replaces points. The batch is validated before anything is applied.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collectionLocked(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point has no id")
		}
		if len(p.Vec) != c.VectorSize {
			return fmt.Errorf("point %s: vector dimension mismatch: expected %d, got %d", p.ID, c.VectorSize, len(p.Vec))
		}
	}

	next := &memCollection{
		VectorSize: c.VectorSize,
		Points:     append([]memoryPoint(nil), c.Points...),
		index:      make(map[string]int, len(c.Points)+len(points)),
	}
	for id, i := range c.index {
		next.index[id] = i
	}
	for _, p := range points {
		mp := memoryPoint{ID: p.ID, Vec: append([]float32(nil), p.Vec...), Meta: p.Meta}
		if i, ok := next.index[p.ID]; ok {
			next.Points[i] = mp
			continue
		}
		next.index[p.ID] = len(next.Points)
		next.Points = append(next.Points, mp)
	}

	if err := s.persistLocked(collection, next); err != nil {
		return err
	}
	s.collections[collection] = next

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search returns the k points with the highest dot product with query.
// Ties keep insertion order.
func (s *MemoryStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	c, err := s.readCollection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.VectorSize {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", c.VectorSize, len(query))
	}

	results := make([]SearchResult, len(c.Points))
	for i, p := range c.Points {
		results[i] = SearchResult{PointID: p.ID, Score: dot(p.Vec, query), Meta: p.Meta}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of points in the collection.
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	c, err := s.readCollection(collection)
	if err != nil {
		return 0, err
	}
	return len(c.Points), nil
}

// readCollection returns a collection for reading, loading its snapshot if needed.
// Collections are replaced, never mutated, so the result is safe to use unlocked.
func (s *MemoryStore) readCollection(collection string) (*memCollection, error) {
	s.mu.RLock()
	c, ok := s.collections[collection]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionLocked(collection)
}

// collectionLocked returns the named collection, loading it from disk on first use.
func (s *MemoryStore) collectionLocked(collection string) (*memCollection, error) {
	if c, ok := s.collections[collection]; ok {
		return c, nil
	}
	if s.dir == "" {
		return nil, fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}

	data, err := os.ReadFile(s.snapshotPath(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	snap := snapshot{memCollection: &memCollection{}}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", collection, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("collection %s has unsupported snapshot version %d", collection, snap.Version)
	}

	c := snap.memCollection
	c.index = make(map[string]int, len(c.Points))
	for i, p := range c.Points {
		c.index[p.ID] = i
	}
	s.collections[collection] = c
	return c, nil
}

// persistLocked writes the collection snapshot atomically.
func (s *MemoryStore) persistLocked(collection string, c *memCollection) error {
	if s.dir == "" {
		return nil
	}

	data, err := json.Marshal(snapshot{Version: snapshotVersion, memCollection: c})
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", collection, err)
	}

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.snapshotPath(collection)); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *MemoryStore) snapshotPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
