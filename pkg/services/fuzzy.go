package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jinzhu/inflection"
)

var (
	identifierPunctPattern = regexp.MustCompile(`[\[\]._]`)
	nonAlnumPattern        = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// normalizeTerm lowercases s, turns identifier punctuation into spaces and
// singularizes each word, so "[dbo].[Orders].[Order_Date]" and "order dates"
// compare as "dbo order order date" and "order date".
func normalizeTerm(s string) string {
	s = strings.ToLower(s)
	s = identifierPunctPattern.ReplaceAllString(s, " ")
	s = nonAlnumPattern.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}
	return strings.Join(words, " ")
}

// similarity is 100 minus the edit distance as a percentage of the longer string.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	return 100 * (1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest))
}

// tokenSetRatio scores two normalized strings 0..100 as sets of words: the
// shared words are compared against each side's full set, so extra words on
// one side do not hurt a match. Either side empty scores 0.
func tokenSetRatio(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var shared, onlyA, onlyB []string
	for w := range setA {
		if setB[w] {
			shared = append(shared, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range setB {
		if !setA[w] {
			onlyB = append(onlyB, w)
		}
	}
	if len(shared) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	sect := strings.Join(shared, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := similarity(combinedA, combinedB)
	if sect != "" {
		best = max(best, similarity(sect, combinedA), similarity(sect, combinedB))
	}
	return best
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
