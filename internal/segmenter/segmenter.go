package segmenter

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"legalrag/internal/document"
	"legalrag/internal/splitter"
)

const (
	// IntroductionTitle labels text before the first marker in Latin-script documents.
	IntroductionTitle = "Introduction"
	// IntroductionTitleArabic labels text before the first marker in Arabic documents.
	IntroductionTitleArabic = "مقدمة"

	// MinBodyRunes is the exclusive lower bound on a segment's trimmed length;
	// shorter segments are noise and never become units.
	MinBodyRunes = 20

	// minArticles is the number of markers below which structure is not trusted.
	minArticles = 2

	// DefaultFallbackThreshold is the input length (runes) above which sparse
	// documents are windowed instead of kept as a single unit.
	DefaultFallbackThreshold = 1000
	// DefaultWindowSize is the fallback window in runes.
	DefaultWindowSize = 1000
	// DefaultWindowOverlap is the fallback overlap in runes.
	DefaultWindowOverlap = 150
)

// Segmenter splits normalized legal text into article units.
type Segmenter struct {
	windowSize        int
	windowOverlap     int
	fallbackThreshold int
	logger            *slog.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithFallbackWindow sets the fallback window size and overlap in runes.
func WithFallbackWindow(size, overlap int) Option {
	return func(s *Segmenter) {
		s.windowSize = size
		s.windowOverlap = overlap
	}
}

// WithLogger sets the logger used to report fallback decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		s.logger = logger
	}
}

// New creates a Segmenter. It fails if the fallback window is invalid.
func New(opts ...Option) (*Segmenter, error) {
	s := &Segmenter{
		windowSize:        DefaultWindowSize,
		windowOverlap:     DefaultWindowOverlap,
		fallbackThreshold: DefaultFallbackThreshold,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.windowSize <= 0 || s.windowOverlap < 0 || s.windowOverlap >= s.windowSize {
		return nil, fmt.Errorf("invalid fallback window: size %d, overlap %d", s.windowSize, s.windowOverlap)
	}
	return s, nil
}

// Result is the outcome of segmenting one document.
type Result struct {
	// Units in document order. IDs are not assigned.
	Units []document.Unit
	// ArticlesFound is the number of markers detected.
	ArticlesFound int
	// Fallback reports whether fixed-size windowing replaced marker segmentation.
	Fallback bool
}

// Segment splits clean into units titled by their article marker. When fewer
// than two markers are found in a document longer than the fallback
// threshold, the whole text is windowed instead and units get synthetic
// "Page/Part N" titles. Empty input yields an empty result.
func (s *Segmenter) Segment(clean, source string) (Result, error) {
	if strings.TrimSpace(clean) == "" {
		return Result{}, nil
	}

	units, articles := s.splitByMarkers(clean, source)
	if articles >= minArticles || utf8.RuneCountInString(clean) <= s.fallbackThreshold {
		return Result{Units: units, ArticlesFound: articles}, nil
	}

	s.logger.Info("too few article markers, switching to fixed-size windows",
		"source", source,
		"articles_found", articles,
		"window_size", s.windowSize,
		"window_overlap", s.windowOverlap,
	)

	windowed, err := s.splitByWindows(clean, source)
	if err != nil {
		return Result{}, err
	}
	return Result{Units: windowed, ArticlesFound: articles, Fallback: true}, nil
}

// splitByMarkers walks the text, treating every marker match as the title of
// the body that follows it.
func (s *Segmenter) splitByMarkers(text, source string) ([]document.Unit, int) {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)

	var units []document.Unit
	title := introductionTitle(text)
	emit := func(segment string) {
		segment = strings.TrimSpace(segment)
		if utf8.RuneCountInString(segment) <= MinBodyRunes {
			return
		}
		units = append(units, document.Unit{
			Title:    title,
			Body:     fmt.Sprintf("Source: %s\nSection: %s\n\n%s", source, title, segment),
			Metadata: document.NewMetadata(source, title),
		})
	}

	prev := 0
	for _, m := range matches {
		emit(text[prev:m[0]])
		title = strings.TrimSpace(text[m[2]:m[3]])
		prev = m[1]
	}
	emit(text[prev:])

	return units, len(matches)
}

// splitByWindows windows the whole text into overlapping parts.
func (s *Segmenter) splitByWindows(text, source string) ([]document.Unit, error) {
	windows, err := splitter.Windows(text, s.windowSize, s.windowOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to window %s: %w", source, err)
	}

	units := make([]document.Unit, 0, len(windows))
	for i, window := range windows {
		title := fmt.Sprintf("Page/Part %d", i+1)
		units = append(units, document.Unit{
			Title:    title,
			Body:     fmt.Sprintf("Source: %s\nPart: %d\n\n%s", source, i+1, window),
			Metadata: document.NewMetadata(source, title),
		})
	}
	return units, nil
}
