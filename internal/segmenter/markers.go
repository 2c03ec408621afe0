package segmenter

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Introducer tokens that open an article. The presentation-form variants are
// what some PDF extraction pipelines emit for "المادة".
const (
	tokenArticleEnglish = "Article"
	tokenArticleArabic  = "\u0627\u0644\u0645\u0627\u062f\u0629" // المادة
	// Base alef, lam-initial, meem-medial, alef-final, base dal and teh marbuta.
	tokenArticleArabicMixed = "\u0627\ufedf\ufee4\ufe8e\u062f\u0629"
	// Every letter in its presentation form.
	tokenArticleArabicShaped = "\ufe8d\ufedf\ufee4\ufe8e\ufea9\ufe93"
)

// maxOrdinalWords bounds the spelled-out ordinal that may follow an introducer.
const maxOrdinalWords = 5

// markerPattern matches an article heading at line start. Group 1 is the
// heading text that becomes the unit title. Only horizontal whitespace is
// allowed inside a heading so a spelled-out ordinal never swallows the body.
var markerPattern = buildMarkerPattern(
	tokenArticleEnglish,
	tokenArticleArabic,
	tokenArticleArabicMixed,
	tokenArticleArabicShaped,
)

func buildMarkerPattern(tokens ...string) *regexp.Regexp {
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	word := `[\p{L}\p{M}\p{N}_]+`
	pattern := `(?m)^[ \t]*((?:` + strings.Join(quoted, "|") + `)[ \t]+(?:\p{Nd}+|` +
		word + `(?:[ \t]+` + word + `){0,` + strconv.Itoa(maxOrdinalWords-1) + `}))`
	return regexp.MustCompile(pattern)
}

// IsMarker reports whether s, after trimming, is exactly one article heading.
func IsMarker(s string) bool {
	s = strings.TrimSpace(s)
	loc := markerPattern.FindStringSubmatchIndex(s)
	return loc != nil && loc[0] == 0 && loc[3] == len(s)
}

// introductionTitle picks the label used for text preceding the first marker.
func introductionTitle(text string) string {
	var arabic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if arabic > latin {
		return IntroductionTitleArabic
	}
	return IntroductionTitle
}
