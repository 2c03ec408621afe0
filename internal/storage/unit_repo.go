package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_unit_store.go -package=mocks legalrag/internal/storage UnitStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"legalrag/internal/contextutil"
	"legalrag/internal/document"
)

// maxQueryIDs bounds the number of placeholders in a single IN clause.
const maxQueryIDs = 500

// UnitStore defines the interface for parent unit storage operations.
type UnitStore interface {
	// Put stores a single unit. unit.ID must be set.
	Put(ctx context.Context, unit document.Unit) error
	// PutMany stores units in one transaction. All are durable when it returns nil.
	PutMany(ctx context.Context, units []document.Unit) error
	// GetMany returns the stored units for ids. Unknown and unreadable ids are absent.
	GetMany(ctx context.Context, ids []string) (map[string]document.Unit, error)
	// Count returns the number of stored units.
	Count(ctx context.Context) (int, error)
}

// UnitRepo provides methods for unit operations.
// It implements the UnitStore interface.
type UnitRepo struct {
	db *sql.DB
}

// NewUnitRepo creates a new UnitRepo.
func NewUnitRepo(db *sql.DB) *UnitRepo {
	return &UnitRepo{db: db}
}

// Put stores a single unit.
func (r *UnitRepo) Put(ctx context.Context, unit document.Unit) error {
	return r.PutMany(ctx, []document.Unit{unit})
}

// PutMany stores units in a single transaction.
// Units are immutable: storing an id that already exists fails the whole batch.
func (r *UnitRepo) PutMany(ctx context.Context, units []document.Unit) error {
	if len(units) == 0 {
		return nil
	}

	rows := make([]unitRow, 0, len(units))
	for _, u := range units {
		if u.ID == "" {
			return fmt.Errorf("unit %q has no id", u.Title)
		}
		row, err := encodeUnit(u)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO units (id, source, format_version, checksum, payload) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare unit insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.ID, units[i].Metadata.Source, row.Version, row.Checksum, row.Payload); err != nil {
			return fmt.Errorf("failed to insert unit %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit units: %w", err)
	}
	return nil
}

// GetMany returns the units stored under ids.
// Rows that fail version or checksum validation are logged and left out.
func (r *UnitRepo) GetMany(ctx context.Context, ids []string) (map[string]document.Unit, error) {
	result := make(map[string]document.Unit, len(ids))
	for start := 0; start < len(ids); start += maxQueryIDs {
		end := min(start+maxQueryIDs, len(ids))
		if err := r.getBatch(ctx, ids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *UnitRepo) getBatch(ctx context.Context, ids []string, into map[string]document.Unit) error {
	logger := contextutil.LoggerFromContext(ctx)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, format_version, checksum, payload FROM units WHERE id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query units: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var row unitRow
		if err := rows.Scan(&row.ID, &row.Version, &row.Checksum, &row.Payload); err != nil {
			return fmt.Errorf("failed to scan unit: %w", err)
		}
		unit, err := decodeUnit(row)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable unit", "unit_id", row.ID, "error", err)
			continue
		}
		into[unit.ID] = unit
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

// Count returns the number of stored units.
func (r *UnitRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return n, nil
}
