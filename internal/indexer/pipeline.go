package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"legalrag/internal/contextutil"
	"legalrag/internal/extract"
	"legalrag/internal/library"
	"legalrag/internal/rag"
	"legalrag/internal/segmenter"
	"legalrag/internal/storage"
	"legalrag/internal/textnorm"
)

// ErrIngestionRunning is returned when a directory run is requested while
// another one is in progress.
var ErrIngestionRunning = errors.New("ingestion already running")

// Result describes the ingestion of one source.
type Result struct {
	Source        string   `json:"source"`
	UnitIDs       []string `json:"unit_ids"`
	ArticlesFound int      `json:"articles_found"`
	Fallback      bool     `json:"fallback"`
	// Skipped is set when the source was already ingested with the same content.
	Skipped bool `json:"skipped,omitempty"`
	// unitRunes holds the body length of every indexed unit, for Stats.
	unitRunes []int
}

// Pipeline turns raw documents into indexed units: extract, normalize,
// segment, then hand the units to the retriever.
type Pipeline struct {
	normalizer    *textnorm.Normalizer
	segmenter     *segmenter.Segmenter
	retriever     rag.Retriever
	sources       storage.SourceStore
	skipUnchanged bool

	// fileMu spans the check, index and record steps of IngestFile.
	fileMu sync.Mutex
	// running is set while a directory run is in progress.
	running atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSkipUnchanged makes IngestFile skip files whose content hash matches
// their last recorded ingestion. By default every call indexes the file again
// under fresh unit ids.
func WithSkipUnchanged(skip bool) Option {
	return func(p *Pipeline) {
		p.skipUnchanged = skip
	}
}

// NewPipeline creates a new ingestion pipeline.
// sources may be nil, in which case nothing is recorded and nothing is skipped.
func NewPipeline(
	normalizer *textnorm.Normalizer,
	seg *segmenter.Segmenter,
	retriever rag.Retriever,
	sources storage.SourceStore,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		segmenter:  seg,
		retriever:  retriever,
		sources:    sources,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestText normalizes and segments text and indexes the resulting units
// under source. Text that yields no units is not an error.
func (p *Pipeline) IngestText(ctx context.Context, source, text string) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	result := Result{Source: source, UnitIDs: []string{}}

	normalized := p.normalizer.Normalize(text)
	if normalized.Repair.Status == textnorm.RepairSkipped {
		logger.WarnContext(ctx, "arabic repair failed, using unrepaired text", "source", source, "error", normalized.Repair.Err)
	}

	segmented, err := p.segmenter.Segment(normalized.Text, source)
	if err != nil {
		return result, fmt.Errorf("failed to segment %s: %w", source, err)
	}
	result.ArticlesFound = segmented.ArticlesFound
	result.Fallback = segmented.Fallback

	if len(segmented.Units) == 0 {
		logger.WarnContext(ctx, "no units extracted", "source", source)
		return result, nil
	}

	ids, err := p.retriever.AddDocuments(ctx, segmented.Units)
	if err != nil {
		return result, fmt.Errorf("failed to index %s: %w", source, err)
	}
	result.UnitIDs = ids
	for _, u := range segmented.Units {
		result.unitRunes = append(result.unitRunes, utf8.RuneCountInString(u.Body))
	}

	logger.InfoContext(ctx, "ingested source",
		"source", source,
		"units", len(ids),
		"articles_found", result.ArticlesFound,
		"fallback", result.Fallback,
	)
	return result, nil
}

// IngestFile extracts and ingests the document at path. The file name is the
// unit source and the ingestion is recorded under it. With WithSkipUnchanged,
// a file whose content hash matches its last recorded ingestion is skipped.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	source := filepath.Base(path)

	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if !extract.Supported(path) {
		return Result{Source: source}, fmt.Errorf("%s: %w", source, extract.ErrUnsupportedFormat)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{Source: source}, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	hash := sha256.Sum256(content)
	hashHex := fmt.Sprintf("%x", hash)

	if p.skipUnchanged && p.sources != nil {
		existing, err := p.sources.GetByName(ctx, source)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Result{Source: source}, fmt.Errorf("failed to check existing source: %w", err)
		}
		if existing != nil && existing.Hash == hashHex {
			logger.DebugContext(ctx, "skipping unchanged file", "source", source, "hash", hashHex)
			return Result{Source: source, UnitIDs: []string{}, ArticlesFound: existing.ArticlesFound, Fallback: existing.Fallback, Skipped: true}, nil
		}
	}

	text, err := extract.Content(path, content)
	if err != nil {
		return Result{Source: source}, err
	}

	result, err := p.IngestText(ctx, source, text)
	if err != nil {
		return result, err
	}

	if p.sources != nil {
		record := &storage.SourceRecord{
			Name:          source,
			Hash:          hashHex,
			UnitCount:     len(result.UnitIDs),
			ArticlesFound: result.ArticlesFound,
			Fallback:      result.Fallback,
		}
		if err := p.sources.Upsert(ctx, record); err != nil {
			// The units are indexed; the next run re-ingests this file.
			logger.WarnContext(ctx, "failed to record source", "source", source, "error", err)
		}
	}
	return result, nil
}

// IngestAll scans root and ingests every supported file.
// Errors for individual files are logged but don't stop the run, except an
// unreachable embedding backend, which would fail every remaining file.
// Only one directory run happens at a time; a second call returns
// ErrIngestionRunning.
func (p *Pipeline) IngestAll(ctx context.Context, root string) (*Stats, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrIngestionRunning
	}
	defer p.running.Store(false)
	return p.ingestAll(ctx, root)
}

// StartIngestAll reserves the pipeline and runs IngestAll in the background,
// passing the outcome to done. It returns ErrIngestionRunning without
// starting anything when a directory run is already in progress.
func (p *Pipeline) StartIngestAll(ctx context.Context, root string, done func(*Stats, error)) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrIngestionRunning
	}
	go func() {
		stats, err := p.ingestAll(ctx, root)
		p.running.Store(false)
		if done != nil {
			done(stats, err)
		}
	}()
	return nil
}

func (p *Pipeline) ingestAll(ctx context.Context, root string) (*Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := library.Scan(ctx, root, extract.Extensions)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "starting ingestion", "root", root, "total_files", len(files))

	stats := &Stats{FilesScanned: len(files)}
	var unitRunes []int
	for _, file := range files {
		select {
		case <-ctx.Done():
			return stats.finish(unitRunes), ctx.Err()
		default:
		}

		result, err := p.IngestFile(ctx, file.AbsPath)
		if err != nil {
			stats.FilesFailed++
			logger.ErrorContext(ctx, "failed to ingest file", "rel_path", file.RelPath, "error", err)
			if errors.Is(err, rag.ErrEmbedding) {
				return stats.finish(unitRunes), err
			}
			continue
		}

		switch {
		case result.Skipped:
			stats.FilesSkipped++
		case len(result.UnitIDs) == 0:
			stats.FilesEmpty++
		default:
			stats.FilesIngested++
			stats.UnitsIndexed += len(result.UnitIDs)
			if result.Fallback {
				stats.FallbackFiles++
			}
			unitRunes = append(unitRunes, result.unitRunes...)
		}
	}

	stats.finish(unitRunes)
	logger.InfoContext(ctx, "ingestion completed",
		"total_files", stats.FilesScanned,
		"ingested", stats.FilesIngested,
		"skipped", stats.FilesSkipped,
		"empty", stats.FilesEmpty,
		"failed", stats.FilesFailed,
		"units", stats.UnitsIndexed,
	)

	if stats.FilesFailed > 0 {
		return stats, fmt.Errorf("ingestion completed with %d errors", stats.FilesFailed)
	}
	return stats, nil
}
