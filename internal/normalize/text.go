package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// selectionMarker matches checkbox markers emitted by form recognizers.
var selectionMarker = regexp.MustCompile(`(?i):(un)?selected:`)

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold returns the case-folded form of s with accents removed.
// Casers and transformers carry state, so each call builds its own.
func Fold(s string) string {
	return cases.Fold().String(StripAccents(s))
}

// StripAccents removes combining marks ("José" -> "Jose").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stripSelectionMarkers removes checkbox markers and reports whether a
// selected (not unselected) marker was present.
func stripSelectionMarkers(s string) (string, bool) {
	selected := false
	for _, m := range selectionMarker.FindAllStringSubmatch(s, -1) {
		if m[1] == "" {
			selected = true
		}
	}
	return selectionMarker.ReplaceAllString(s, " "), selected
}

// words folds s and splits it into alphanumeric tokens. Apostrophes are
// dropped so "child's" becomes "childs"; every other non-alphanumeric rune
// separates tokens.
func words(s string) []string {
	s = Fold(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func hasToken(tokens []string, want ...string) bool {
	for _, w := range want {
		for _, t := range tokens {
			if t == w {
				return true
			}
		}
	}
	return false
}
