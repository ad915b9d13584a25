// Package block defines the ledger's immutable Block record and its
// canonical hashing rules.
package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// GenesisSignature is the sentinel signature stored on the genesis block,
// which has no submitter to sign it.
const GenesisSignature = "N/A_GENESIS_SIGNATURE"

// GenesisPreviousHash is the previous-hash value every genesis block carries.
const GenesisPreviousHash = "0"

// Version is the current block format version, itself part of the hash
// pre-image.
const Version = 1

// PageData is the page record carried by every non-genesis block.
type PageData struct {
	Title     string `json:"title"`
	Page      int    `json:"page"`
	Content   string `json:"content"`
	PublicKey string `json:"public_key"`
}

// GenesisData is the sentinel record carried by the genesis block.
type GenesisData struct {
	Message string `json:"message"`
}

// Block is one immutable ledger entry. Data holds either a *PageData, a
// *GenesisData, or (for blocks freshly loaded from JSON before typing) a
// map[string]any; callers should use Block.PageDataRecord/Block.IsGenesis to
// inspect it rather than type-switching directly.
type Block struct {
	Index        uint64 `json:"index"`
	PreviousHash string `json:"previous_hash"`
	Timestamp    int64  `json:"timestamp"`
	Version      int    `json:"version"`
	Data         any    `json:"data"`
	Signature    string `json:"signature"`
	Nonce        int64  `json:"nonce"`
	CurrentHash  string `json:"current_hash"`
}

// NewGenesis builds an unmined genesis block ready for proof-of-work.
func NewGenesis() *Block {
	return &Block{
		Index:        0,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    0,
		Version:      Version,
		Data:         &GenesisData{Message: "Genesis Block"},
		Signature:    GenesisSignature,
		Nonce:        0,
	}
}

// NewPageBlock builds an unmined page block ready for proof-of-work, chained
// onto previousHash at the given index.
func NewPageBlock(index uint64, previousHash string, timestamp int64, data PageData, signature string) *Block {
	return &Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Version:      Version,
		Data:         &data,
		Signature:    signature,
		Nonce:        0,
	}
}

// PageDataRecord returns the block's page record and true if Data holds one,
// whether typed (*block.PageData) or generic (decoded from JSON as
// map[string]any).
func (b *Block) PageDataRecord() (PageData, bool) {
	switch d := b.Data.(type) {
	case *PageData:
		return *d, true
	case PageData:
		return d, true
	case map[string]any:
		title, ok1 := d["title"].(string)
		content, ok2 := d["content"].(string)
		pub, ok3 := d["public_key"].(string)
		pageNum, ok4 := asInt(d["page"])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return PageData{}, false
		}
		return PageData{Title: title, Page: pageNum, Content: content, PublicKey: pub}, true
	default:
		return PageData{}, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// IsGenesis reports whether the block looks like the genesis sentinel
// record, independent of whether Data was decoded as a typed struct or a
// generic JSON map.
func (b *Block) IsGenesis() bool {
	switch d := b.Data.(type) {
	case *GenesisData:
		return true
	case GenesisData:
		return true
	case map[string]any:
		_, ok := d["message"]
		return ok
	case string:
		return d == "Genesis"
	default:
		return false
	}
}

// dataCanonical renders Data the way the hash pre-image requires: a
// deterministic JSON object (keys sorted, no whitespace) when Data is
// map-shaped, or the plain string form otherwise.
func (b *Block) dataCanonical() (string, error) {
	switch d := b.Data.(type) {
	case *PageData:
		return canonicalJSON(map[string]any{
			"title":      d.Title,
			"page":       d.Page,
			"content":    d.Content,
			"public_key": d.PublicKey,
		})
	case PageData:
		return canonicalJSON(map[string]any{
			"title":      d.Title,
			"page":       d.Page,
			"content":    d.Content,
			"public_key": d.PublicKey,
		})
	case *GenesisData:
		return canonicalJSON(map[string]any{"message": d.Message})
	case GenesisData:
		return canonicalJSON(map[string]any{"message": d.Message})
	case map[string]any:
		return canonicalJSON(d)
	case string:
		return d, nil
	default:
		b2, err := json.Marshal(d)
		if err != nil {
			return "", err
		}
		return string(b2), nil
	}
}

// canonicalJSON serializes m with ascending sorted keys and no extraneous
// whitespace, matching the Python reference's json.dumps(sort_keys=True,
// separators=(",", ":")).
func canonicalJSON(m map[string]any) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			return "", err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// preimage builds the canonical pre-image string hashed to produce
// CurrentHash: index | previous_hash | timestamp | version | data_canonical
// | signature | nonce, concatenated with no separators, matching the
// reference implementation's string concatenation exactly.
func (b *Block) preimage() (string, error) {
	dataStr, err := b.dataCanonical()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(b.Index, 10))
	buf.WriteString(b.PreviousHash)
	buf.WriteString(strconv.FormatInt(b.Timestamp, 10))
	buf.WriteString(strconv.Itoa(b.Version))
	buf.WriteString(dataStr)
	buf.WriteString(b.Signature)
	buf.WriteString(strconv.FormatInt(b.Nonce, 10))
	return buf.String(), nil
}

// ComputeHash recomputes the block's double-SHA-256 hash from its current
// fields, independent of whatever is currently stored in CurrentHash.
func (b *Block) ComputeHash() (string, error) {
	pre, err := b.preimage()
	if err != nil {
		return "", err
	}
	first := sha256.Sum256([]byte(pre))
	second := sha256.Sum256(first[:])
	return hex.EncodeToString(second[:]), nil
}

// HasLeadingZeros reports whether hash begins with n hex '0' characters.
func HasLeadingZeros(hash string, n int) bool {
	if len(hash) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}
