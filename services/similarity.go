package services

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Weighted-ratio scoring on a 0..100 scale. Plain edit-distance ratio for
// names of similar length; when one name is much longer than the other the
// best aligned substring window counts too, scaled down so an exact
// containment lands at 90 (or 60 for very lopsided pairs).
const (
	unbaseScale       = 0.95
	partialScale      = 0.9
	lopsidedScale     = 0.6
	partialFromRatio  = 1.5
	lopsidedFromRatio = 8.0
)

var levenshtein = metrics.NewLevenshtein()

// SimilarityScore compares two food names after normalization and accent
// folding. Identical names score 100, unrelated ones close to 0.
func SimilarityScore(query, candidate string) int {
	a := foldAccents(NormalizeName(query))
	b := foldAccents(NormalizeName(candidate))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	short, long := a, b
	if runeLen(short) > runeLen(long) {
		short, long = long, short
	}
	lenRatio := float64(runeLen(long)) / float64(runeLen(short))

	best := ratio(a, b)
	if lenRatio < partialFromRatio {
		best = max(best,
			tokenSortRatio(a, b)*unbaseScale,
			tokenSetRatio(a, b)*unbaseScale,
		)
		return int(math.Round(best))
	}

	scale := partialScale
	if lenRatio >= lopsidedFromRatio {
		scale = lopsidedScale
	}
	best = max(best,
		partialRatio(short, long)*scale,
		tokenSortRatio(a, b)*unbaseScale*scale,
		tokenSetRatio(a, b)*unbaseScale*scale,
	)
	return int(math.Round(best))
}

func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, levenshtein) * 100
}

// partialRatio slides short over long and keeps the best window.
func partialRatio(short, long string) float64 {
	rs, rl := []rune(short), []rune(long)
	n := len(rs)
	best := 0.0
	for i := 0; i+n <= len(rl); i++ {
		if r := ratio(short, string(rl[i:i+n])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(strings.Fields(a)), sortedTokens(strings.Fields(b)))
}

func tokenSetRatio(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}

	t0 := sortedTokens(common)
	t1 := strings.TrimSpace(t0 + " " + sortedTokens(onlyA))
	t2 := strings.TrimSpace(t0 + " " + sortedTokens(onlyB))
	return max(ratio(t0, t1), ratio(t0, t2), ratio(t1, t2))
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}

func sortedTokens(tokens []string) string {
	cp := append([]string(nil), tokens...)
	sort.Strings(cp)
	return strings.Join(cp, " ")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }

// significantTokens are the words long enough to be worth a LIKE filter.
func significantTokens(normalized string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range strings.Fields(normalized) {
		if runeLen(t) >= 3 && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
