package normalize

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// legalFormTokens are company legal-form designators that carry no
// identity information and are dropped before comparison.
var legalFormTokens = map[string]bool{
	"sp":      true,
	"z":       true,
	"o":       true,
	"oo":      true,
	"zoo":     true,
	"sa":      true,
	"ska":     true,
	"spj":     true,
	"spk":     true,
	"sc":      true,
	"psa":     true,
	"sarl":    true,
	"gmbh":    true,
	"ag":      true,
	"ltd":     true,
	"llc":     true,
	"inc":     true,
	"corp":    true,
	"co":      true,
	"company": true,
	"firma":   true,
	"phu":     true,
	"fhu":     true,
	"pw":      true,
}

var diacriticFolder = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n",
	"ó", "o", "ś", "s", "ź", "z", "ż", "z",
	"ä", "a", "ö", "o", "ü", "u", "ß", "ss",
	"á", "a", "é", "e", "í", "i", "ú", "u", "ý", "y",
	"è", "e", "ê", "e", "à", "a", "ç", "c",
)

// CompanyName normalizes a company name for comparison: lowercase, folded
// diacritics, punctuation replaced with spaces and legal-form tokens
// removed. Returns the empty string when nothing identifying remains.
func CompanyName(s string) string {
	return strings.Join(companyTokens(s), " ")
}

func companyTokens(s string) []string {
	s = diacriticFolder.Replace(strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if legalFormTokens[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// SignificantWords returns the normalized words of a company name that are
// long enough to carry identity (three characters or more).
func SignificantWords(s string) []string {
	var words []string
	for _, t := range companyTokens(s) {
		if len(t) >= 3 {
			words = append(words, t)
		}
	}
	return words
}

// CompareCompanyNames scores the similarity of two company names in [0,1].
// Exact normalized equality scores 1.0, containment 0.9, then edit
// distance and word overlap provide graded partial scores. Missing names
// score 0.
func CompareCompanyNames(a, b string) float64 {
	na := CompanyName(a)
	nb := CompanyName(b)
	if na == "" || nb == "" {
		return 0
	}

	if na == nb {
		return 1.0
	}

	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 3 && strings.Contains(longer, shorter) {
		return 0.9
	}

	sim := levenshteinSimilarity(na, nb)
	if sim >= 0.8 {
		return sim
	}

	if overlap := WordOverlapScore(a, b); overlap > 0 {
		if overlap > sim {
			return overlap
		}
		return sim
	}

	if sim >= 0.5 {
		return sim
	}

	return 0
}

// WordOverlapScore is the fallback heuristic for names that differ too
// much for edit distance: two shared significant words, or enough shared
// words to cover half of the first name's significant words, score in the
// 0.5 to 0.8 band. Anything weaker scores 0.
func WordOverlapScore(a, b string) float64 {
	wa := SignificantWords(a)
	wb := SignificantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(wb))
	for _, w := range wb {
		seen[w] = true
	}

	shared := 0
	for _, w := range wa {
		if seen[w] {
			shared++
		}
	}

	if shared >= 2 || (shared >= 1 && shared*2 >= len(wa)) {
		score := 0.5 + 0.1*float64(shared)
		if score > 0.8 {
			score = 0.8
		}
		return score
	}

	return 0
}

func levenshteinSimilarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}

	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1.0 - float64(distance)/float64(maxLen)
}
