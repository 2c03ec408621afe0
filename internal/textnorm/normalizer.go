package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxPageNumberDigits is the exclusive upper bound on the digit count of a
// bare line treated as a page number.
const maxPageNumberDigits = 4

// invisibleSpaces maps non-breaking and zero-width code points produced by
// PDF extraction to an ordinary space.
var invisibleSpaces = strings.NewReplacer(
	"\u00a0", " ", // no-break space
	"\u2000", " ", "\u2001", " ", "\u2002", " ", "\u2003", " ", "\u2004", " ",
	"\u2005", " ", "\u2006", " ", "\u2007", " ", "\u2008", " ", "\u2009", " ",
	"\u200a", " ",
	"\u200b", " ", // zero width space
	"\u202f", " ", // narrow no-break space
	"\u205f", " ",
	"\u3000", " ",
	"\ufeff", " ", // byte order mark
)

// Normalizer cleans raw extracted text before segmentation.
type Normalizer struct {
	repairArabic bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithArabicRepair enables glyph folding and bidi reordering of Arabic lines.
func WithArabicRepair(enabled bool) Option {
	return func(n *Normalizer) {
		n.repairArabic = enabled
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Result is the outcome of Normalize.
type Result struct {
	// Text is the cleaned text, one non-empty trimmed line per line.
	Text string
	// Repair reports what happened to the Arabic repair step.
	Repair RepairResult
}

// Normalize cleans raw. It has no side effects.
func (n *Normalizer) Normalize(raw string) Result {
	text := invisibleSpaces.Replace(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	repair := RepairResult{Text: text, Status: RepairNotNeeded}
	if n.repairArabic {
		repair = RepairArabic(text)
		text = repair.Text
	}

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isPageNumber(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	return Result{
		Text:   strings.Join(cleaned, "\n"),
		Repair: repair,
	}
}

// isPageNumber reports whether line is a bare number with fewer than four digits.
func isPageNumber(line string) bool {
	if utf8.RuneCountInString(line) >= maxPageNumberDigits {
		return false
	}
	for _, r := range line {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
