package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/bidi"
	"golang.org/x/text/unicode/norm"
)

// RepairStatus describes the outcome of an Arabic repair attempt.
type RepairStatus int

const (
	// RepairNotNeeded means no line needed reordering or folding, or repair was disabled.
	RepairNotNeeded RepairStatus = iota
	// RepairApplied means at least one line was reordered or folded.
	RepairApplied
	// RepairSkipped means repair failed and the original text was kept.
	RepairSkipped
)

func (s RepairStatus) String() string {
	switch s {
	case RepairNotNeeded:
		return "not_needed"
	case RepairApplied:
		return "applied"
	case RepairSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("RepairStatus(%d)", int(s))
	}
}

// RepairResult carries either the repaired text or the original text with the
// reason the repair was skipped.
type RepairResult struct {
	Text   string
	Status RepairStatus
	Err    error
}

// ContainsArabic reports whether s contains any code point of the Arabic script,
// including the presentation-form blocks.
func ContainsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}

// RepairArabic restores the reading order of Arabic lines extracted in visual
// order, as PDF text layers commonly store them. A line is taken to be visual
// when more of its words start than end with a letter that only occurs word
// finally (ة, ى), or, with no such evidence, when it carries presentation-form
// glyphs. Visual lines are reordered with the Unicode bidirectional algorithm.
// Every Arabic line then has its presentation forms folded to base letters
// (NFKC), so markers and embeddings see the same letters as typed text.
// Lines already in logical order keep their order.
func RepairArabic(text string) RepairResult {
	if !ContainsArabic(text) {
		return RepairResult{Text: text, Status: RepairNotNeeded}
	}

	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		if !ContainsArabic(line) {
			continue
		}
		fixed := line
		if isVisualOrder(line) {
			var err error
			fixed, err = visualToLogical(line)
			if err != nil {
				return RepairResult{
					Text:   text,
					Status: RepairSkipped,
					Err:    fmt.Errorf("line %d: %w", i+1, err),
				}
			}
		}
		fixed = norm.NFKC.String(fixed)
		if fixed != line {
			lines[i] = fixed
			changed = true
		}
	}

	if !changed {
		return RepairResult{Text: text, Status: RepairNotNeeded}
	}
	return RepairResult{Text: strings.Join(lines, "\n"), Status: RepairApplied}
}

// isVisualOrder guesses whether an Arabic line is stored in display order.
func isVisualOrder(line string) bool {
	folded := norm.NFKC.String(line)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r)
	})

	starts, ends := 0, 0
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return unicode.Is(unicode.Mn, r) })
		runes := []rune(w)
		if len(runes) < 2 {
			continue
		}
		if isFinalOnly(runes[0]) {
			starts++
		}
		if isFinalOnly(runes[len(runes)-1]) {
			ends++
		}
	}
	if starts != ends {
		return starts > ends
	}
	return hasPresentationForms(line)
}

// isFinalOnly reports whether r is a letter that only ends Arabic words.
func isFinalOnly(r rune) bool {
	return r == '\u0629' || r == '\u0649'
}

func hasPresentationForms(s string) bool {
	for _, r := range s {
		if (r >= 0xFB50 && r <= 0xFDFF) || (r >= 0xFE70 && r <= 0xFEFF) {
			return true
		}
	}
	return false
}

// visualToLogical reorders a line stored in right-to-left display order.
// The paragraph level is forced to right-to-left, so left-to-right runs sit
// exactly one level above it: reading the runs back to front and reversing
// the right-to-left ones yields the reading order. Spaces stay inside the
// runs they were resolved to.
func visualToLogical(line string) (string, error) {
	var p bidi.Paragraph
	if _, err := p.SetString(line, bidi.DefaultDirection(bidi.RightToLeft)); err != nil {
		return "", fmt.Errorf("failed to load bidi paragraph: %w", err)
	}

	ordering, err := p.Order()
	if err != nil {
		return "", fmt.Errorf("failed to resolve bidi order: %w", err)
	}

	var b strings.Builder
	b.Grow(len(line))
	for i := ordering.NumRuns() - 1; i >= 0; i-- {
		run := ordering.Run(i)
		if run.Direction() == bidi.RightToLeft {
			b.WriteString(bidi.ReverseString(run.String()))
			continue
		}
		b.WriteString(run.String())
	}
	return b.String(), nil
}
