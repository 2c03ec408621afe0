package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"legalrag/internal/document"
)

// FormatVersion is the version of the unit payload encoding written by this build.
const FormatVersion = 1

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound           = errors.New("record not found")
	// ErrCorruptRecord is returned when a stored payload fails its checksum or cannot be decoded.
	ErrCorruptRecord      = errors.New("corrupt record")
	// ErrUnsupportedVersion is returned when a stored payload has an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported record format version")
)

// SourceRecord is the ingestion history of one source document.
type SourceRecord struct {
	Name          string    // Source filename, as in unit metadata
	Hash          string    // SHA256 hex string of the raw document
	UnitCount     int       // Units stored by the last ingestion
	ArticlesFound int       // Markers detected by the last ingestion
	Fallback      bool      // Whether the last ingestion used fixed-size windows
	IngestedAt    time.Time
}

// unitRow is a units table row before decoding.
type unitRow struct {
	ID       string
	Version  int
	Checksum string
	Payload  []byte
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// encodeUnit serializes u into a versioned, checksummed row.
func encodeUnit(u document.Unit) (unitRow, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return unitRow{}, fmt.Errorf("failed to encode unit %s: %w", u.ID, err)
	}
	return unitRow{
		ID:       u.ID,
		Version:  FormatVersion,
		Checksum: checksum(payload),
		Payload:  payload,
	}, nil
}

// decodeUnit verifies and deserializes a row.
func decodeUnit(row unitRow) (document.Unit, error) {
	if row.Version != FormatVersion {
		return document.Unit{}, fmt.Errorf("unit %s has version %d: %w", row.ID, row.Version, ErrUnsupportedVersion)
	}
	if checksum(row.Payload) != row.Checksum {
		return document.Unit{}, fmt.Errorf("unit %s checksum mismatch: %w", row.ID, ErrCorruptRecord)
	}
	var u document.Unit
	if err := json.Unmarshal(row.Payload, &u); err != nil {
		return document.Unit{}, fmt.Errorf("unit %s payload: %v: %w", row.ID, err, ErrCorruptRecord)
	}
	if u.ID != row.ID {
		return document.Unit{}, fmt.Errorf("unit %s payload carries id %q: %w", row.ID, u.ID, ErrCorruptRecord)
	}
	return u, nil
}

// parseTimestamp parses a SQLite DATETIME column.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		// SQLite might use a different format
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
		}
	}
	return t, nil
}
