// Package pdfdoc is the PDF reading collaborator: it decomposes a PDF file
// into ordered page text and derives a document title from its filename.
// Full parsing fidelity (encryption, embedded fonts, CID mappings) is out of
// scope; this is the minimal concrete reader the submission CLI drives.
package pdfdoc

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Reader decomposes a PDF document into page text and resolves its title.
// It is the external collaborator boundary named by the submission flow;
// LocalReader is one concrete implementation, not the only possible one.
type Reader interface {
	Pages(path string) ([]string, error)
	Title(path string, known map[string]struct{}) (string, bool)
}

// LocalReader extracts page text directly from a PDF's content streams on
// the local filesystem.
type LocalReader struct{}

// NewLocalReader constructs a LocalReader.
func NewLocalReader() *LocalReader {
	return &LocalReader{}
}

var (
	objectPattern  = regexp.MustCompile(`(?s)\d+\s+\d+\s+obj(.*?)endobj`)
	streamPattern  = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\n?endstream`)
	tjStringPat    = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrayPat     = regexp.MustCompile(`(?s)\[(.*?)\]\s*TJ`)
	tjArrayItemPat = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
	whitespacePat  = regexp.MustCompile(`\s+`)
)

// Pages returns the canonical text of every page in path, in order. A page
// with no extractable text (an image-only scan, typically) is represented
// by a placeholder string rather than omitted, so page numbering downstream
// stays aligned with the physical document.
func (r *LocalReader) Pages(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}

	var pages []string
	for _, objMatch := range objectPattern.FindAllSubmatch(raw, -1) {
		body := objMatch[1]
		if !bytes.Contains(body, []byte("stream")) {
			continue
		}
		content, err := decodeStream(body)
		if err != nil {
			continue
		}
		// A page's content stream brackets its text-showing operators in a
		// BT/ET block; streams without one are font programs or image data,
		// not page content, and are not counted as pages at all.
		if !bytes.Contains(content, []byte("BT")) {
			continue
		}
		text := extractText(content)
		if text == "" {
			text = placeholderFor(len(pages))
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func placeholderFor(index int) string {
	return fmt.Sprintf("[Page %d - No text extracted or image-only page]", index+1)
}

// decodeStream extracts the raw bytes of a PDF stream object, inflating it
// first if its dictionary declares FlateDecode.
func decodeStream(object []byte) ([]byte, error) {
	dictEnd := bytes.Index(object, []byte("stream"))
	if dictEnd < 0 {
		return nil, fmt.Errorf("no stream keyword")
	}
	dict := object[:dictEnd]

	m := streamPattern.FindSubmatch(object)
	if m == nil {
		return nil, fmt.Errorf("malformed stream object")
	}
	body := m[1]

	if bytes.Contains(dict, []byte("/FlateDecode")) {
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("inflate stream: %w", err)
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("read inflated stream: %w", err)
		}
		return inflated, nil
	}
	return body, nil
}

// extractText pulls the literal strings shown by Tj and TJ operators out of
// a decoded content stream and joins them with spaces, collapsing
// whitespace the way the upstream text extractor does.
func extractText(content []byte) string {
	var b strings.Builder
	for _, m := range tjStringPat.FindAllSubmatch(content, -1) {
		b.WriteString(decodeLiteral(m[1]))
		b.WriteByte(' ')
	}
	for _, m := range tjArrayPat.FindAllSubmatch(content, -1) {
		for _, item := range tjArrayItemPat.FindAllSubmatch(m[1], -1) {
			b.WriteString(decodeLiteral(item[1]))
		}
		b.WriteByte(' ')
	}
	return strings.TrimSpace(whitespacePat.ReplaceAllString(b.String(), " "))
}

// decodeLiteral resolves the backslash escapes allowed inside a PDF literal
// string: named escapes, octal byte escapes, and escaped delimiters.
func decodeLiteral(s []byte) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			out.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		switch next {
		case 'n':
			out.WriteByte('\n')
			i++
		case 'r':
			out.WriteByte('\r')
			i++
		case 't':
			out.WriteByte('\t')
			i++
		case 'b':
			out.WriteByte('\b')
			i++
		case 'f':
			out.WriteByte('\f')
			i++
		case '(', ')', '\\':
			out.WriteByte(next)
			i++
		default:
			if next >= '0' && next <= '7' {
				j := i + 1
				end := j
				for end < len(s) && end < j+3 && s[end] >= '0' && s[end] <= '7' {
					end++
				}
				if v, err := strconv.ParseUint(string(s[j:end]), 8, 8); err == nil {
					out.WriteByte(byte(v))
				}
				i = end - 1
			} else {
				out.WriteByte(next)
				i++
			}
		}
	}
	return out.String()
}

// Title derives a document title from path's base filename. It returns
// false when that title is already present in known, mirroring the
// duplicate-title rejection the submission flow applies against the
// ledger's existing titles. A caller checking a re-presented document
// against an existing title passes an empty known set.
func (r *LocalReader) Title(path string, known map[string]struct{}) (string, bool) {
	title := filepath.Base(path)
	if _, exists := known[title]; exists {
		return "", false
	}
	return title, true
}
