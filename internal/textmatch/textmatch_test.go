package textmatch

import "testing"

func TestCompareExactMatch(t *testing.T) {
	res := Compare("The quick brown fox jumps over the lazy dog.", "The quick brown fox jumps over the lazy dog.")
	if res.Kind != Exact {
		t.Fatalf("expected exact, got %s (%.1f%%)", res.Kind, res.Similarity)
	}
	if res.Similarity != 100 {
		t.Fatalf("expected 100%% similarity, got %.1f", res.Similarity)
	}
}

func TestCompareExactIgnoresWhitespaceAndCase(t *testing.T) {
	res := Compare("Hello   World", "hello world")
	if res.Kind != Exact {
		t.Fatalf("expected exact after normalization, got %s", res.Kind)
	}
}

func TestCompareModifiedMinorChange(t *testing.T) {
	original := "This agreement is entered into between the parties on the effective date and shall remain binding until terminated."
	modified := "This agreement is entered into between the parties on the revised date and shall remain binding until terminated."

	res := Compare(original, modified)
	if res.Kind != Modified {
		t.Fatalf("expected modified, got %s (%.1f%%)", res.Kind, res.Similarity)
	}
	if res.Similarity < 75 {
		t.Fatalf("expected similarity >= 75, got %.1f", res.Similarity)
	}
}

func TestCompareDifferentDocuments(t *testing.T) {
	a := "Machine learning algorithms have revolutionized data analysis and artificial intelligence."
	b := "The vessel departed port on schedule carrying twelve containers of industrial equipment."

	res := Compare(a, b)
	if res.Kind != Different {
		t.Fatalf("expected different, got %s (%.1f%%)", res.Kind, res.Similarity)
	}
}

func TestCompareEmptyStrings(t *testing.T) {
	res := Compare("", "")
	if res.Kind != Exact || res.Similarity != 100 {
		t.Fatalf("expected two empty pages to be exact, got %s (%.1f%%)", res.Kind, res.Similarity)
	}
}

func TestSearchFindsAllOccurrences(t *testing.T) {
	positions := search("ababcabcabababd", "ababd")
	if len(positions) != 1 || positions[0] != 10 {
		t.Fatalf("expected single match at 10, got %v", positions)
	}
}

func TestSearchNoMatch(t *testing.T) {
	if positions := search("abcdef", "xyz"); positions != nil {
		t.Fatalf("expected no matches, got %v", positions)
	}
}

func TestSequenceRatioIdentical(t *testing.T) {
	if ratio := sequenceRatio("abcdef", "abcdef"); ratio != 1 {
		t.Fatalf("expected ratio 1 for identical strings, got %f", ratio)
	}
}

func TestSequenceRatioDisjoint(t *testing.T) {
	if ratio := sequenceRatio("aaaa", "bbbb"); ratio != 0 {
		t.Fatalf("expected ratio 0 for disjoint strings, got %f", ratio)
	}
}

func TestFindCommonSubstringsDoesNotDoubleCountOverlap(t *testing.T) {
	matches := findCommonSubstrings("the quick brown fox", "a quick brown fox jumped")
	for i, m := range matches {
		if m.Length == 0 {
			t.Fatalf("unexpected zero-length match: %+v", m)
		}
		for _, other := range matches[i+1:] {
			if m.TextBPos < other.TextBPos+other.Length && other.TextBPos < m.TextBPos+m.Length {
				t.Fatalf("overlapping matches both kept: %+v and %+v", m, other)
			}
		}
	}
}
