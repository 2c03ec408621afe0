package indexer

import (
	"math"
	"sort"
)

// Stats summarizes an IngestAll run.
type Stats struct {
	// FilesScanned is the number of supported files found under the root.
	FilesScanned int `json:"files_scanned"`
	// FilesIngested is the number of files that produced at least one unit.
	FilesIngested int `json:"files_ingested"`
	// FilesSkipped is the number of files unchanged since their last ingestion.
	FilesSkipped int `json:"files_skipped"`
	// FilesEmpty is the number of files that produced no units.
	FilesEmpty int `json:"files_empty"`
	// FilesFailed is the number of files that could not be ingested.
	FilesFailed int `json:"files_failed"`
	// UnitsIndexed is the total number of units added to the index.
	UnitsIndexed int `json:"units_indexed"`
	// FallbackFiles is the number of files segmented with fixed-size windows.
	FallbackFiles int `json:"fallback_files"`
	// UnitRuneStats describes the body length of the indexed units.
	UnitRuneStats UnitRuneStats `json:"unit_rune_stats"`
}

// UnitRuneStats contains statistics about unit body lengths, in runes.
type UnitRuneStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// finish fills in the length statistics and returns s.
func (s *Stats) finish(unitRunes []int) *Stats {
	s.UnitRuneStats = computeRuneStats(unitRunes)
	return s
}

// computeRuneStats computes min, max, mean, and p95 from rune counts.
func computeRuneStats(counts []int) UnitRuneStats {
	if len(counts) == 0 {
		return UnitRuneStats{}
	}

	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)

	sum := 0
	for _, c := range sorted {
		sum += c
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return UnitRuneStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
