package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/document"
)

func TestWindows_EmptyText(t *testing.T) {
	windows, err := Windows("", 1000, 150)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestWindows_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Windows("some text", tt.size, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestWindows_ShortTextIsSingleWindow(t *testing.T) {
	windows, err := Windows("The penalty is a fine.", 1000, 150)
	require.NoError(t, err)
	assert.Equal(t, []string{"The penalty is a fine."}, windows)
}

func TestWindows_FixedOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 300) // 3000 runes, no separators

	windows, err := Windows(text, 1000, 150)
	require.NoError(t, err)

	// ceil((3000-150)/(1000-150)) windows
	require.Len(t, windows, 4)
	for i, w := range windows[:3] {
		assert.Equal(t, 1000, utf8.RuneCountInString(w), "window %d", i)
	}
	assert.Equal(t, 450, utf8.RuneCountInString(windows[3]))

	for i := 0; i+1 < len(windows); i++ {
		prev := []rune(windows[i])
		next := []rune(windows[i+1])
		assert.Equal(t, string(prev[len(prev)-150:]), string(next[:150]), "overlap between %d and %d", i, i+1)
	}
}

func TestWindows_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ب", 1200)

	windows, err := Windows(text, 1000, 150)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(windows[0]))
	assert.Equal(t, 350, utf8.RuneCountInString(windows[1]))
}

func TestNewFragmentSplitter(t *testing.T) {
	s, err := NewFragmentSplitter(DefaultFragmentSize, DefaultFragmentOverlap)
	require.NoError(t, err)
	assert.Equal(t, 400, s.Size())
	assert.Equal(t, 100, s.Overlap())

	_, err = NewFragmentSplitter(100, 100)
	assert.Error(t, err)
}

func TestFragmentSplitter_Split(t *testing.T) {
	s, err := NewFragmentSplitter(DefaultFragmentSize, DefaultFragmentOverlap)
	require.NoError(t, err)

	words := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		words = append(words, "regulation")
	}
	body := "Source: vat.txt\nSection: Article 3\n\n" + strings.Join(words, " ")
	unit := document.Unit{
		ID:       "unit-1",
		Title:    "Article 3",
		Body:     body,
		Metadata: document.NewMetadata("vat.txt", "Article 3"),
	}

	fragments, err := s.Split(unit)
	require.NoError(t, err)
	require.Greater(t, len(fragments), 1)

	for i, f := range fragments {
		assert.Equal(t, "unit-1", f.UnitID)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, unit.Metadata, f.Metadata)
		assert.LessOrEqual(t, utf8.RuneCountInString(f.Text), DefaultFragmentSize)
		assert.True(t, strings.Contains(body, f.Text), "fragment %d is not a slice of the body", i)
	}

	again, err := s.Split(unit)
	require.NoError(t, err)
	assert.Equal(t, fragments, again)
}

func TestFragmentSplitter_SmallUnitIsOneFragment(t *testing.T) {
	s, err := NewFragmentSplitter(DefaultFragmentSize, DefaultFragmentOverlap)
	require.NoError(t, err)

	unit := document.Unit{
		ID:   "unit-2",
		Body: "Source: a.txt\nSection: Article 1\n\nThe penalty is a fine.",
	}

	fragments, err := s.Split(unit)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, unit.Body, fragments[0].Text)
}

func TestFragmentSplitter_EmptyBody(t *testing.T) {
	s, err := NewFragmentSplitter(DefaultFragmentSize, DefaultFragmentOverlap)
	require.NoError(t, err)

	fragments, err := s.Split(document.Unit{ID: "empty"})
	require.NoError(t, err)
	assert.Empty(t, fragments)
}
