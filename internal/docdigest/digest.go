// Package docdigest computes the deterministic chained digest signed by a
// document submitter for one page of a document. The digest is the message
// over which the RSA-PSS signature in a ledger block is produced, so any
// change to its inputs or algorithm invalidates every signature in the
// ledger — treat this file as frozen once deployed.
package docdigest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"unicode/utf16"
)

// Seed is the fixed constant mixed into every page digest. It has no
// security purpose beyond domain-separating this digest from a plain SHA-256
// of the page text; it must never change.
const Seed = "9ca57ab0545f346b422ebf7fe6be7b9a5e11f214a1e575bfc0db081f4b5fa0ec"

// chunkSize is the number of UTF-16 code units per chunk when splitting page
// content for the chained hash.
const chunkSize = 20

const emptyPagePlaceholder = "EMPTY_PAGE_PLACEHOLDER"

func hashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Page computes the chained page digest for content on the given 1-based
// page number within title (a block's 0-based page plus one). It is deterministic: identical inputs always produce an
// identical hex digest, and any change to content, title, or page number
// changes the result.
//
// When content is empty, the digest is a single hash over title, the page
// number, the seed, and a placeholder marker distinguishing an empty page
// from a page whose text happens to tokenize into zero chunks.
//
// Otherwise the digest starts from hash(title || pageNumber || seed) and is
// folded forward one 20-code-unit chunk of content at a time, in order:
// h = hash(chunk || h).
func Page(content, title string, pageNumber int) string {
	pageStr := strconv.Itoa(pageNumber)

	if content == "" {
		return hashHex(title, pageStr, Seed, emptyPagePlaceholder)
	}

	h := hashHex(title, pageStr, Seed)
	for _, chunk := range chunks(content, chunkSize) {
		h = hashHex(chunk, h)
	}
	return h
}

// chunks splits s into successive runs of n UTF-16 code units, in order, with
// no overlap; the final chunk may be shorter than n.
func chunks(s string, n int) []string {
	units := utf16.Encode([]rune(s))
	if len(units) == 0 {
		return nil
	}
	out := make([]string, 0, (len(units)+n-1)/n)
	for i := 0; i < len(units); i += n {
		end := i + n
		if end > len(units) {
			end = len(units)
		}
		out = append(out, string(utf16.Decode(units[i:end])))
	}
	return out
}
