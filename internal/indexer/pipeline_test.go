package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"legalrag/internal/document"
	"legalrag/internal/extract"
	"legalrag/internal/rag"
	rag_mocks "legalrag/internal/rag/mocks"
	"legalrag/internal/segmenter"
	"legalrag/internal/storage"
	storage_mocks "legalrag/internal/storage/mocks"
	"legalrag/internal/textnorm"
)

const twoArticles = "Article 1\nThe penalty is a fine.\nArticle 2\nThe fine is doubled for repeat offenders."

func newTestPipeline(t *testing.T, retriever rag.Retriever, sources storage.SourceStore, opts ...Option) *Pipeline {
	t.Helper()
	seg, err := segmenter.New()
	if err != nil {
		t.Fatalf("segmenter.New() error = %v", err)
	}
	return NewPipeline(textnorm.New(), seg, retriever, sources, opts...)
}

// fakeIDs returns ids u-0..u-n for the units it receives.
func fakeIDs(_ context.Context, units []document.Unit) ([]string, error) {
	ids := make([]string, len(units))
	for i := range units {
		ids[i] = fmt.Sprintf("u-%d", i)
	}
	return ids, nil
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	return path
}

func TestPipeline_IngestText(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)

	var received []document.Unit
	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, units []document.Unit) ([]string, error) {
			received = units
			return fakeIDs(ctx, units)
		})

	p := newTestPipeline(t, retriever, nil)
	result, err := p.IngestText(context.Background(), "penal_code.txt", "  Article 1  \n \n12\nThe penalty is a fine.\nArticle 2\nThe fine is doubled for repeat offenders.")
	if err != nil {
		t.Fatalf("IngestText() error = %v", err)
	}

	if len(result.UnitIDs) != 2 {
		t.Fatalf("IngestText() unit ids = %v, want 2", result.UnitIDs)
	}
	if result.ArticlesFound != 2 || result.Fallback {
		t.Errorf("IngestText() articles = %d, fallback = %v", result.ArticlesFound, result.Fallback)
	}
	if received[0].Title != "Article 1" || received[1].Title != "Article 2" {
		t.Errorf("IngestText() titles = %q, %q", received[0].Title, received[1].Title)
	}
	want := "Source: penal_code.txt\nSection: Article 1\n\nThe penalty is a fine."
	if received[0].Body != want {
		t.Errorf("IngestText() body = %q, want %q", received[0].Body, want)
	}
	if received[0].Metadata.Subject != "penal_code" {
		t.Errorf("IngestText() subject = %q", received[0].Metadata.Subject)
	}
}

func TestPipeline_IngestText_NoUnits(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)

	p := newTestPipeline(t, retriever, nil)
	for _, text := range []string{"", "   \n\n", "Article 1\nshort"} {
		result, err := p.IngestText(context.Background(), "empty.txt", text)
		if err != nil {
			t.Fatalf("IngestText(%q) error = %v", text, err)
		}
		if result.UnitIDs == nil || len(result.UnitIDs) != 0 {
			t.Errorf("IngestText(%q) unit ids = %v, want empty", text, result.UnitIDs)
		}
	}
}

func TestPipeline_IngestText_IndexError(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: connection refused", rag.ErrEmbedding))

	p := newTestPipeline(t, retriever, nil)
	_, err := p.IngestText(context.Background(), "penal_code.txt", twoArticles)
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Errorf("IngestText() error = %v, want ErrEmbedding", err)
	}
}

func TestPipeline_IngestFile_RecordsSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	sources := storage_mocks.NewMockSourceStore(ctrl)

	path := writeSource(t, t.TempDir(), "penal_code.txt", twoArticles)
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(twoArticles)))

	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Any()).DoAndReturn(fakeIDs)
	sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *storage.SourceRecord) error {
			if rec.Name != "penal_code.txt" || rec.Hash != wantHash {
				t.Errorf("Upsert() record = %+v", rec)
			}
			if rec.UnitCount != 2 || rec.ArticlesFound != 2 || rec.Fallback {
				t.Errorf("Upsert() counts = %+v", rec)
			}
			return nil
		})

	p := newTestPipeline(t, retriever, sources)
	result, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if result.Source != "penal_code.txt" || len(result.UnitIDs) != 2 || result.Skipped {
		t.Errorf("IngestFile() = %+v", result)
	}
}

func TestPipeline_IngestFile_SkipsUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	sources := storage_mocks.NewMockSourceStore(ctrl)

	path := writeSource(t, t.TempDir(), "penal_code.txt", twoArticles)
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(twoArticles)))

	sources.EXPECT().GetByName(gomock.Any(), "penal_code.txt").
		Return(&storage.SourceRecord{Name: "penal_code.txt", Hash: hash, UnitCount: 2, ArticlesFound: 2}, nil)

	p := newTestPipeline(t, retriever, sources, WithSkipUnchanged(true))
	result, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if !result.Skipped || result.ArticlesFound != 2 || len(result.UnitIDs) != 0 {
		t.Errorf("IngestFile() = %+v, want skipped", result)
	}
}

func TestPipeline_IngestFile_SkipUnchangedIngestsChangedFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	sources := storage_mocks.NewMockSourceStore(ctrl)

	path := writeSource(t, t.TempDir(), "penal_code.txt", twoArticles)

	gomock.InOrder(
		sources.EXPECT().GetByName(gomock.Any(), "penal_code.txt").
			Return(&storage.SourceRecord{Name: "penal_code.txt", Hash: "stale"}, nil),
		retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Len(2)).DoAndReturn(fakeIDs),
		sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil),
	)

	p := newTestPipeline(t, retriever, sources, WithSkipUnchanged(true))
	result, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if result.Skipped || len(result.UnitIDs) != 2 {
		t.Errorf("IngestFile() = %+v, want ingested", result)
	}
}

func TestPipeline_IngestFile_ReingestsByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	sources := storage_mocks.NewMockSourceStore(ctrl)

	path := writeSource(t, t.TempDir(), "penal_code.txt", twoArticles)

	// Same content twice: both calls index, neither consults the history.
	var calls int
	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Len(2)).Times(2).
		DoAndReturn(func(_ context.Context, units []document.Unit) ([]string, error) {
			calls++
			return []string{fmt.Sprintf("run%d-a", calls), fmt.Sprintf("run%d-b", calls)}, nil
		})
	sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Times(2).Return(nil)

	p := newTestPipeline(t, retriever, sources)
	first, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() first error = %v", err)
	}
	second, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() second error = %v", err)
	}

	if first.Skipped || second.Skipped {
		t.Errorf("IngestFile() skipped a file without WithSkipUnchanged")
	}
	for _, id := range second.UnitIDs {
		for _, prev := range first.UnitIDs {
			if id == prev {
				t.Errorf("IngestFile() reused unit id %s", id)
			}
		}
	}
}

func TestPipeline_IngestFile_SourceRecordFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)
	sources := storage_mocks.NewMockSourceStore(ctrl)

	path := writeSource(t, t.TempDir(), "penal_code.md", "## Article 1\n\nThe penalty is a fine.\n\n## Article 2\n\nThe fine is doubled for repeat offenders.")

	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Len(2)).DoAndReturn(fakeIDs)
	sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("database is locked"))

	p := newTestPipeline(t, retriever, sources)
	result, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}
	if len(result.UnitIDs) != 2 {
		t.Errorf("IngestFile() unit ids = %v", result.UnitIDs)
	}
}

func TestPipeline_IngestFile_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newTestPipeline(t, rag_mocks.NewMockRetriever(ctrl), nil)
	dir := t.TempDir()

	_, err := p.IngestFile(context.Background(), writeSource(t, dir, "law.pdf", "%PDF"))
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("IngestFile(pdf) error = %v, want ErrUnsupportedFormat", err)
	}

	_, err = p.IngestFile(context.Background(), filepath.Join(dir, "missing.txt"))
	if err == nil {
		t.Error("IngestFile(missing) expected error")
	}
}

func TestPipeline_IngestAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)

	dir := t.TempDir()
	writeSource(t, dir, "a_penal.txt", twoArticles)
	writeSource(t, dir, "b_note.md", "hello")
	writeSource(t, dir, "c_labor.txt", "Article 1\nWorkers are paid monthly in riyals.")
	writeSource(t, dir, "scan.pdf", "%PDF")
	writeSource(t, dir, ".cache/d.txt", twoArticles)

	gomock.InOrder(
		retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Len(2)).DoAndReturn(fakeIDs),
		retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Len(1)).Return(nil, errors.New("disk full")),
	)

	p := newTestPipeline(t, retriever, nil)
	stats, err := p.IngestAll(context.Background(), dir)
	if err == nil {
		t.Error("IngestAll() expected error for failed file")
	}
	if stats == nil {
		t.Fatal("IngestAll() returned nil stats")
	}

	want := Stats{FilesScanned: 3, FilesIngested: 1, FilesEmpty: 1, FilesFailed: 1, UnitsIndexed: 2}
	got := *stats
	got.UnitRuneStats = UnitRuneStats{}
	if got != want {
		t.Errorf("IngestAll() stats = %+v, want %+v", got, want)
	}
	if stats.UnitRuneStats.Min == 0 || stats.UnitRuneStats.Max < stats.UnitRuneStats.Min {
		t.Errorf("IngestAll() rune stats = %+v", stats.UnitRuneStats)
	}
}

func TestPipeline_IngestAll_StopsOnEmbeddingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)

	dir := t.TempDir()
	writeSource(t, dir, "a.txt", twoArticles)
	writeSource(t, dir, "b.txt", twoArticles)

	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: model not loaded", rag.ErrEmbedding)).Times(1)

	p := newTestPipeline(t, retriever, nil)
	stats, err := p.IngestAll(context.Background(), dir)
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Fatalf("IngestAll() error = %v, want ErrEmbedding", err)
	}
	if stats.FilesFailed != 1 || stats.FilesIngested != 0 {
		t.Errorf("IngestAll() stats = %+v", stats)
	}
}

func TestPipeline_IngestAll_Fallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	retriever := rag_mocks.NewMockRetriever(ctrl)

	dir := t.TempDir()
	long := make([]byte, 0, 2500)
	for len(long) < 2500 {
		long = append(long, "Royal decree text without structure. "...)
	}
	writeSource(t, dir, "decree.txt", string(long))

	retriever.EXPECT().AddDocuments(gomock.Any(), gomock.Any()).DoAndReturn(fakeIDs)

	p := newTestPipeline(t, retriever, nil)
	stats, err := p.IngestAll(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestAll() error = %v", err)
	}
	if stats.FallbackFiles != 1 || stats.UnitsIndexed < 2 {
		t.Errorf("IngestAll() stats = %+v", stats)
	}
}

func TestPipeline_IngestAll_Cancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := t.TempDir()
	writeSource(t, dir, "a.txt", twoArticles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, rag_mocks.NewMockRetriever(ctrl), nil)
	if _, err := p.IngestAll(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("IngestAll() error = %v, want context.Canceled", err)
	}
}

// gatedRetriever blocks AddDocuments until release is closed.
type gatedRetriever struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	batches int
}

func (g *gatedRetriever) AddDocuments(ctx context.Context, units []document.Unit) ([]string, error) {
	g.started <- struct{}{}
	<-g.release
	g.mu.Lock()
	g.batches++
	g.mu.Unlock()
	return fakeIDs(ctx, units)
}

func (g *gatedRetriever) Retrieve(context.Context, string) ([]document.Unit, error) {
	return nil, nil
}

func TestPipeline_IngestAll_SingleRun(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "penal_code.txt", twoArticles)

	retriever := &gatedRetriever{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := newTestPipeline(t, retriever, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.IngestAll(context.Background(), dir)
		firstDone <- err
	}()

	select {
	case <-retriever.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start")
	}

	if _, err := p.IngestAll(context.Background(), dir); !errors.Is(err, ErrIngestionRunning) {
		t.Errorf("IngestAll() during a run error = %v, want ErrIngestionRunning", err)
	}
	if err := p.StartIngestAll(context.Background(), dir, nil); !errors.Is(err, ErrIngestionRunning) {
		t.Errorf("StartIngestAll() during a run error = %v, want ErrIngestionRunning", err)
	}

	close(retriever.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("IngestAll() error = %v", err)
	}
	if retriever.batches != 1 {
		t.Errorf("AddDocuments() called %d times, want 1", retriever.batches)
	}

	// The guard is released once the run finishes.
	go func() { <-retriever.started }()
	if _, err := p.IngestAll(context.Background(), dir); err != nil {
		t.Errorf("IngestAll() after the run error = %v", err)
	}
}

func TestPipeline_StartIngestAll(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "penal_code.txt", twoArticles)

	retriever := &gatedRetriever{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := newTestPipeline(t, retriever, nil)

	type outcome struct {
		stats *Stats
		err   error
	}
	done := make(chan outcome, 1)
	err := p.StartIngestAll(context.Background(), dir, func(stats *Stats, err error) {
		done <- outcome{stats, err}
	})
	if err != nil {
		t.Fatalf("StartIngestAll() error = %v", err)
	}

	<-retriever.started
	if _, err := p.IngestAll(context.Background(), dir); !errors.Is(err, ErrIngestionRunning) {
		t.Errorf("IngestAll() during a background run error = %v, want ErrIngestionRunning", err)
	}
	close(retriever.release)

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("background run error = %v", got.err)
		}
		if got.stats.FilesIngested != 1 || got.stats.UnitsIndexed != 2 {
			t.Errorf("background run stats = %+v", got.stats)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
	}
}
