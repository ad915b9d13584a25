// Package textmatch implements the approximate text-similarity scorer used
// to surface "modified page" diagnostics when a verified document's page
// text does not hash-match the registered record. It never participates in
// ledger validity; its only consumer is the operator-facing verification
// report.
package textmatch

import (
	"sort"
	"strings"
)

// Kind classifies the relationship between two page texts.
type Kind string

const (
	Exact     Kind = "exact"
	Modified  Kind = "modified"
	Similar   Kind = "similar"
	Different Kind = "different"
)

// Match is one located common segment between the two texts being compared.
type Match struct {
	Pattern  string
	TextAPos int
	TextBPos int
	Length   int
	Kind     string // "word" or "phrase"
}

// Result is the outcome of Compare.
type Result struct {
	Kind       Kind
	Similarity float64 // percentage, 0-100
	Matches    []Match
}

const minPhraseLength = 10
const minWordLength = 4
const maxPhraseWords = 6

// Compare classifies b against a (the registered original) and scores how
// similar they are. Whitespace is normalized before comparison so that
// layout-only differences from re-extracting a PDF's text do not register
// as tampering.
func Compare(a, b string) Result {
	cleanA := strings.Join(strings.Fields(a), " ")
	cleanB := strings.Join(strings.Fields(b), " ")

	if strings.EqualFold(cleanA, cleanB) {
		return Result{Kind: Exact, Similarity: 100, Matches: nil}
	}

	matches := findCommonSubstrings(cleanA, cleanB)
	similarity := sequenceRatio(strings.ToLower(cleanA), strings.ToLower(cleanB)) * 100

	if len(matches) > 0 {
		totalMatched := 0
		for _, m := range matches {
			totalMatched += m.Length
		}
		maxLen := len(cleanA)
		if len(cleanB) > maxLen {
			maxLen = len(cleanB)
		}
		boost := 0.0
		if maxLen > 0 {
			boost = float64(totalMatched) / float64(maxLen) * 50
			if boost > 20 {
				boost = 20
			}
		}
		similarity += boost
		if similarity > 100 {
			similarity = 100
		}
	}

	kind := classify(similarity, len(matches))
	return Result{Kind: kind, Similarity: similarity, Matches: matches}
}

func classify(similarity float64, matchCount int) Kind {
	switch {
	case similarity >= 75:
		return Modified
	case similarity >= 40 || matchCount >= 3:
		return Similar
	default:
		return Different
	}
}

// findCommonSubstrings locates shared words and short phrases of a against
// b using KMP search, then discards overlapping hits in favor of the
// longest ones covering each span.
func findCommonSubstrings(a, b string) []Match {
	words := strings.Fields(a)
	lowerA := strings.ToLower(a)
	lowerB := strings.ToLower(b)

	var candidates []Match
	for _, word := range words {
		if len(word) < minWordLength {
			continue
		}
		lw := strings.ToLower(word)
		positions := search(lowerB, lw)
		if len(positions) == 0 {
			continue
		}
		aPos := strings.Index(lowerA, lw)
		for _, p := range positions {
			candidates = append(candidates, Match{Pattern: word, TextAPos: aPos, TextBPos: p, Length: len(word), Kind: "word"})
		}
	}

	for i := range words {
		maxLen := maxPhraseWords
		if remaining := len(words) - i; remaining < maxLen {
			maxLen = remaining
		}
		for phraseLen := 2; phraseLen <= maxLen; phraseLen++ {
			phrase := strings.Join(words[i:i+phraseLen], " ")
			if len(phrase) < minPhraseLength {
				continue
			}
			lp := strings.ToLower(phrase)
			positions := search(lowerB, lp)
			if len(positions) == 0 {
				continue
			}
			aPos := strings.Index(lowerA, lp)
			for _, p := range positions {
				candidates = append(candidates, Match{Pattern: phrase, TextAPos: aPos, TextBPos: p, Length: len(phrase), Kind: "phrase"})
			}
		}
	}

	return dedupeByLongest(candidates)
}

// dedupeByLongest keeps the longest match covering any given span in
// either text, discarding shorter matches that overlap an already-kept one.
func dedupeByLongest(candidates []Match) []Match {
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Length > candidates[j].Length })

	usedA := make(map[int]bool)
	usedB := make(map[int]bool)
	var out []Match
	for _, m := range candidates {
		if overlaps(usedA, m.TextAPos, m.Length) || overlaps(usedB, m.TextBPos, m.Length) {
			continue
		}
		out = append(out, m)
		mark(usedA, m.TextAPos, m.Length)
		mark(usedB, m.TextBPos, m.Length)
	}
	return out
}

func overlaps(used map[int]bool, pos, length int) bool {
	for i := pos; i < pos+length; i++ {
		if used[i] {
			return true
		}
	}
	return false
}

func mark(used map[int]bool, pos, length int) {
	for i := pos; i < pos+length; i++ {
		used[i] = true
	}
}

// buildFailureTable computes the KMP partial-match (failure) table for
// pattern.
func buildFailureTable(pattern string) []int {
	table := make([]int, len(pattern))
	j := 0
	for i := 1; i < len(pattern); i++ {
		for j > 0 && pattern[i] != pattern[j] {
			j = table[j-1]
		}
		if pattern[i] == pattern[j] {
			j++
		}
		table[i] = j
	}
	return table
}

// search returns every starting index in text at which pattern occurs,
// using the Knuth-Morris-Pratt algorithm.
func search(text, pattern string) []int {
	if pattern == "" || text == "" {
		return nil
	}
	table := buildFailureTable(pattern)
	var matches []int
	j := 0
	for i := 0; i < len(text); i++ {
		for j > 0 && text[i] != pattern[j] {
			j = table[j-1]
		}
		if text[i] == pattern[j] {
			j++
		}
		if j == len(pattern) {
			matches = append(matches, i-j+1)
			j = table[j-1]
		}
	}
	return matches
}

// sequenceRatio is a Ratcliff-Obershelp similarity ratio equivalent to
// Python's difflib.SequenceMatcher.ratio(): twice the total length of
// matching blocks divided by the combined length of both sequences.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	matched := matchingBlockLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchingBlockLength recursively finds the longest common substring of a
// and b, then sums matches found in the segments to either side of it.
func matchingBlockLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	aStart, bStart, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}
	total := length
	total += matchingBlockLength(a[:aStart], b[:bStart])
	total += matchingBlockLength(a[aStart+length:], b[bStart+length:])
	return total
}

// longestCommonSubstring finds one longest common substring of a and b via
// dynamic programming over suffix lengths, returning its start offsets in
// each string and its length.
func longestCommonSubstring(a, b string) (aStart, bStart, length int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	bestA, bestB := 0, 0

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
					bestA = i - best
					bestB = j - best
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return bestA, bestB, best
}
