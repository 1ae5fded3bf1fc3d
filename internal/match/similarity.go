package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Similarity scores two normalized names in [0,1]. It is the larger of the
// indel ratio of the raw strings and of their token-sorted forms, so word
// order does not matter ("smith jon" scores 1.0 against "jon smith").
// The score is symmetric and deterministic.
func Similarity(a, b string) float64 {
	direct := indelRatio(a, b)
	sorted := indelRatio(sortTokens(a), sortTokens(b))
	if sorted > direct {
		return sorted
	}
	return direct
}

// indelRatio is 2*LCS/(len(a)+len(b)) counted in runes: 1.0 for identical
// strings, 0.0 when nothing is shared.
func indelRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return float64(2*edlib.LCS(a, b)) / float64(la+lb)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
