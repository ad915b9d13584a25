package block

import "testing"

func TestComputeHashDeterministic(t *testing.T) {
	b := NewPageBlock(1, "abc", 1000, PageData{Title: "Doc", Page: 1, Content: "hello", PublicKey: "pub"}, "sig")
	got1, err := b.ComputeHash()
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	got2, err := b.ComputeHash()
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	if got1 != got2 {
		t.Fatalf("hash is not deterministic: %q vs %q", got1, got2)
	}
	if len(got1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got1))
	}
}

func TestComputeHashSensitiveToNonce(t *testing.T) {
	b := NewPageBlock(1, "abc", 1000, PageData{Title: "Doc", Page: 1, Content: "hello", PublicKey: "pub"}, "sig")
	h1, _ := b.ComputeHash()
	b.Nonce = 1
	h2, _ := b.ComputeHash()
	if h1 == h2 {
		t.Fatalf("expected nonce change to change the hash")
	}
}

func TestComputeHashSensitiveToFields(t *testing.T) {
	base := NewPageBlock(1, "abc", 1000, PageData{Title: "Doc", Page: 1, Content: "hello", PublicKey: "pub"}, "sig")
	baseHash, _ := base.ComputeHash()

	tests := []struct {
		name   string
		mutate func(*Block)
	}{
		{"index", func(b *Block) { b.Index = 2 }},
		{"previous hash", func(b *Block) { b.PreviousHash = "def" }},
		{"timestamp", func(b *Block) { b.Timestamp = 1001 }},
		{"signature", func(b *Block) { b.Signature = "othersig" }},
		{"content", func(b *Block) { b.Data = &PageData{Title: "Doc", Page: 1, Content: "world", PublicKey: "pub"} }},
		{"title", func(b *Block) { b.Data = &PageData{Title: "Other", Page: 1, Content: "hello", PublicKey: "pub"} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewPageBlock(1, "abc", 1000, PageData{Title: "Doc", Page: 1, Content: "hello", PublicKey: "pub"}, "sig")
			tc.mutate(b)
			got, err := b.ComputeHash()
			if err != nil {
				t.Fatalf("compute hash: %v", err)
			}
			if got == baseHash {
				t.Fatalf("expected hash to change after mutating %s", tc.name)
			}
		})
	}
}

func TestGenesisBlockIsGenesis(t *testing.T) {
	g := NewGenesis()
	if !g.IsGenesis() {
		t.Fatalf("expected genesis block to report IsGenesis")
	}
	if _, ok := g.PageDataRecord(); ok {
		t.Fatalf("genesis block should not decode as page data")
	}
}

func TestPageDataRecordFromGenericMap(t *testing.T) {
	b := &Block{
		Data: map[string]any{
			"title":      "Doc",
			"page":       float64(2),
			"content":    "hi",
			"public_key": "pub",
		},
	}
	pd, ok := b.PageDataRecord()
	if !ok {
		t.Fatalf("expected page data record to decode from generic map")
	}
	if pd.Title != "Doc" || pd.Page != 2 || pd.Content != "hi" || pd.PublicKey != "pub" {
		t.Fatalf("unexpected decoded page data: %+v", pd)
	}
}

func TestIsGenesisFromGenericMap(t *testing.T) {
	b := &Block{Data: map[string]any{"message": "Genesis Block"}}
	if !b.IsGenesis() {
		t.Fatalf("expected generic map with message key to report as genesis")
	}
}

func TestHasLeadingZeros(t *testing.T) {
	if !HasLeadingZeros("00ab", 2) {
		t.Fatalf("expected leading zeros to match")
	}
	if HasLeadingZeros("0abc", 2) {
		t.Fatalf("expected leading zeros not to match")
	}
	if HasLeadingZeros("00", 3) {
		t.Fatalf("expected short hash not to match a longer requirement")
	}
}
