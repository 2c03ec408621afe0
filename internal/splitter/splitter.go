package splitter

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"legalrag/internal/document"
)

const (
	// DefaultFragmentSize is the fragment window in runes.
	DefaultFragmentSize = 400
	// DefaultFragmentOverlap is the number of runes shared by consecutive fragments.
	DefaultFragmentOverlap = 100
)

// defaultSeparators are tried in order; the empty separator splits per rune.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// newRecursive builds a recursive character splitter that measures length in runes.
func newRecursive(size, overlap int) (textsplitter.RecursiveCharacter, error) {
	if size <= 0 {
		return textsplitter.RecursiveCharacter{}, fmt.Errorf("chunk size must be greater than 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return textsplitter.RecursiveCharacter{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	s := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(defaultSeparators),
	)
	s.LenFunc = utf8.RuneCountInString
	return s, nil
}

// Windows splits text into windows of at most size runes where consecutive
// windows share up to overlap runes. Empty text yields no windows.
func Windows(text string, size, overlap int) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	s, err := newRecursive(size, overlap)
	if err != nil {
		return nil, err
	}
	windows, err := s.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return windows, nil
}

// FragmentSplitter subdivides unit bodies into overlapping fragments sized for vector search.
type FragmentSplitter struct {
	size    int
	overlap int
	inner   textsplitter.RecursiveCharacter
}

// NewFragmentSplitter creates a FragmentSplitter with the given window and overlap in runes.
func NewFragmentSplitter(size, overlap int) (*FragmentSplitter, error) {
	inner, err := newRecursive(size, overlap)
	if err != nil {
		return nil, err
	}
	return &FragmentSplitter{
		size:    size,
		overlap: overlap,
		inner:   inner,
	}, nil
}

// Split returns the fragments of unit in body order. Each fragment carries
// unit.ID as its back-reference and a copy of the unit metadata.
// Fragment IDs are left empty; the index assigns them.
func (s *FragmentSplitter) Split(unit document.Unit) ([]document.Fragment, error) {
	if unit.Body == "" {
		return nil, nil
	}

	texts, err := s.inner.SplitText(unit.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to split unit %s: %w", unit.ID, err)
	}

	fragments := make([]document.Fragment, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			continue
		}
		fragments = append(fragments, document.Fragment{
			UnitID:   unit.ID,
			Index:    len(fragments),
			Text:     text,
			Metadata: unit.Metadata,
		})
	}
	return fragments, nil
}

// Size returns the configured window size in runes.
func (s *FragmentSplitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *FragmentSplitter) Overlap() int { return s.overlap }
