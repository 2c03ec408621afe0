package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"legalrag/internal/contextutil"
	"legalrag/internal/document"
	"legalrag/internal/llm"
	"legalrag/internal/vectorstore"
)

// DefaultEmbeddingBatchSize is the number of texts sent to the embedder per request.
const DefaultEmbeddingBatchSize = 32

// Payload keys stored with every fragment point.
const (
	payloadUnitID        = "unit_id"
	payloadFragmentIndex = "fragment_index"
	payloadText          = "text"
	payloadSource        = "source"
	payloadSubject       = "subject"
	payloadArticle       = "article"
)

// fragmentNamespace seeds the name-based UUIDs of fragment points.
var fragmentNamespace = uuid.MustParse("8f0d5a52-3c1e-4b7e-9a43-6f2d3e1c9b10")

// FragmentID derives the point id of fragment index of unit unitID.
// The same unit and index always produce the same id.
func FragmentID(unitID string, index int) string {
	return uuid.NewSHA1(fragmentNamespace, []byte(unitID+"/"+strconv.Itoa(index))).String()
}

// EmbeddedFragment is a fragment with its vector, ready to publish.
type EmbeddedFragment struct {
	Fragment document.Fragment
	Vector   []float32
}

// ScoredFragment is a search hit.
type ScoredFragment struct {
	Fragment document.Fragment
	Score    float32
}

// FragmentIndex is the similarity index over fragments.
type FragmentIndex struct {
	embedder   llm.Embedder
	store      vectorstore.VectorStore
	collection string
	batchSize  int
}

// NewFragmentIndex creates a FragmentIndex storing points in collection.
// A batchSize of 0 or less selects DefaultEmbeddingBatchSize.
func NewFragmentIndex(embedder llm.Embedder, store vectorstore.VectorStore, collection string, batchSize int) *FragmentIndex {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	return &FragmentIndex{
		embedder:   embedder,
		store:      store,
		collection: collection,
		batchSize:  batchSize,
	}
}

// Collection returns the vector store collection name.
func (x *FragmentIndex) Collection() string { return x.collection }

// Embed computes vectors for fragments without touching the store.
// Fragments without an ID get one derived from their unit and index.
func (x *FragmentIndex) Embed(ctx context.Context, fragments []document.Fragment) ([]EmbeddedFragment, error) {
	out := make([]EmbeddedFragment, 0, len(fragments))
	for start := 0; start < len(fragments); start += x.batchSize {
		end := min(start+x.batchSize, len(fragments))
		batch := fragments[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Text
		}

		vectors, err := x.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", ErrEmbedding, start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbedding, len(batch), len(vectors))
		}

		for i, f := range batch {
			if f.ID == "" {
				f.ID = FragmentID(f.UnitID, f.Index)
			}
			out = append(out, EmbeddedFragment{Fragment: f, Vector: vectors[i]})
		}
	}
	return out, nil
}

// Publish writes embedded fragments to the vector store.
func (x *FragmentIndex) Publish(ctx context.Context, embedded []EmbeddedFragment) error {
	if len(embedded) == 0 {
		return nil
	}

	points := make([]vectorstore.Point, len(embedded))
	for i, e := range embedded {
		f := e.Fragment
		points[i] = vectorstore.Point{
			ID:  f.ID,
			Vec: e.Vector,
			Meta: map[string]any{
				payloadUnitID:        f.UnitID,
				payloadFragmentIndex: int64(f.Index),
				payloadText:          f.Text,
				payloadSource:        f.Metadata.Source,
				payloadSubject:       f.Metadata.Subject,
				payloadArticle:       f.Metadata.Article,
			},
		}
	}

	if err := x.store.Upsert(ctx, x.collection, points); err != nil {
		return fmt.Errorf("%w: %w", ErrVectorIndex, err)
	}
	return nil
}

// Add embeds and publishes fragments. Nothing is written if embedding fails.
func (x *FragmentIndex) Add(ctx context.Context, fragments []document.Fragment) error {
	embedded, err := x.Embed(ctx, fragments)
	if err != nil {
		return err
	}
	return x.Publish(ctx, embedded)
}

// Search returns the k fragments most similar to query, most similar first.
// Points whose payload lacks a unit id are logged and dropped.
func (x *FragmentIndex) Search(ctx context.Context, query string, k int) ([]ScoredFragment, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vectors, err := x.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", ErrEmbedding, len(vectors))
	}

	results, err := x.store.Search(ctx, x.collection, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVectorIndex, err)
	}

	hits := make([]ScoredFragment, 0, len(results))
	for _, r := range results {
		f, ok := fragmentFromPayload(r.PointID, r.Meta)
		if !ok {
			logger.WarnContext(ctx, "skipping point without unit id", "point_id", r.PointID)
			continue
		}
		hits = append(hits, ScoredFragment{Fragment: f, Score: r.Score})
	}
	return hits, nil
}

// Size returns the number of stored fragments.
func (x *FragmentIndex) Size(ctx context.Context) (int, error) {
	n, err := x.store.Count(ctx, x.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrVectorIndex, err)
	}
	return n, nil
}

func fragmentFromPayload(id string, meta map[string]any) (document.Fragment, bool) {
	unitID, _ := meta[payloadUnitID].(string)
	if unitID == "" {
		return document.Fragment{}, false
	}
	text, _ := meta[payloadText].(string)
	source, _ := meta[payloadSource].(string)
	subject, _ := meta[payloadSubject].(string)
	article, _ := meta[payloadArticle].(string)

	return document.Fragment{
		ID:     id,
		UnitID: unitID,
		Index:  payloadInt(meta[payloadFragmentIndex]),
		Text:   text,
		Metadata: document.Metadata{
			Source:  source,
			Subject: subject,
			Article: article,
		},
	}, true
}

// payloadInt reads an integer payload value. Qdrant returns int64, JSON snapshots float64.
func payloadInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
