package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_source_store.go -package=mocks legalrag/internal/storage SourceStore

import (
	"context"
	"database/sql"
	"fmt"
)

// SourceStore defines the interface for source ingestion history.
type SourceStore interface {
	// GetByName gets a source by name.
	// Returns nil and ErrNotFound if not found.
	GetByName(ctx context.Context, name string) (*SourceRecord, error)
	// List returns every recorded source ordered by name.
	List(ctx context.Context) ([]SourceRecord, error)
	// Upsert records an ingestion of a source, replacing any previous record.
	Upsert(ctx context.Context, source *SourceRecord) error
}

// SourceRepo provides methods for source operations.
// It implements the SourceStore interface.
type SourceRepo struct {
	db *sql.DB
}

// NewSourceRepo creates a new SourceRepo.
func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

// GetByName gets a source by name.
// Returns nil and ErrNotFound if not found.
func (r *SourceRepo) GetByName(ctx context.Context, name string) (*SourceRecord, error) {
	var src SourceRecord
	var ingestedAt string
	var fallback int

	err := r.db.QueryRowContext(ctx,
		"SELECT name, hash, unit_count, articles_found, fallback, ingested_at FROM sources WHERE name = ?",
		name,
	).Scan(&src.Name, &src.Hash, &src.UnitCount, &src.ArticlesFound, &fallback, &ingestedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}

	src.Fallback = fallback != 0
	if src.IngestedAt, err = parseTimestamp(ingestedAt); err != nil {
		return nil, err
	}
	return &src, nil
}

// List returns every recorded source ordered by name.
func (r *SourceRepo) List(ctx context.Context) ([]SourceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name, hash, unit_count, articles_found, fallback, ingested_at FROM sources ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sources []SourceRecord
	for rows.Next() {
		var src SourceRecord
		var ingestedAt string
		var fallback int
		if err := rows.Scan(&src.Name, &src.Hash, &src.UnitCount, &src.ArticlesFound, &fallback, &ingestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.Fallback = fallback != 0
		if src.IngestedAt, err = parseTimestamp(ingestedAt); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

// Upsert inserts a new source or updates an existing one.
func (r *SourceRepo) Upsert(ctx context.Context, source *SourceRecord) error {
	fallback := 0
	if source.Fallback {
		fallback = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (name, hash, unit_count, articles_found, fallback, ingested_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE SET
		 hash = excluded.hash, unit_count = excluded.unit_count,
		 articles_found = excluded.articles_found, fallback = excluded.fallback,
		 ingested_at = CURRENT_TIMESTAMP`,
		source.Name, source.Hash, source.UnitCount, source.ArticlesFound, fallback,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}
