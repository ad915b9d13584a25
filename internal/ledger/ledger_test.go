package ledger

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/docdigest"
	"github.com/TorporOverload/DocChainValidator/internal/signing"
	"github.com/TorporOverload/DocChainValidator/internal/testutil"
)

func genKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub, err := signing.PublicKeyToPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	return key, pub
}

func signPage(t *testing.T, priv *rsa.PrivateKey, content, title string, page int) string {
	t.Helper()
	digest := docdigest.Page(content, title, page+1)
	sig, err := signing.Sign(digest, priv)
	if err != nil {
		t.Fatalf("sign page: %v", err)
	}
	return sig
}

// TestHappyPathAppendAndValidate mirrors scenario S1: a single page at
// difficulty 1 produces a valid two-block chain indexed by title.
func TestHappyPathAppendAndValidate(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	l, err := Open(sb.Path("chain.json"), 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	priv, pub := genKeyPair(t)
	sig := signPage(t, priv, "Hello world", "T", 0)
	data := block.PageData{Title: "T", Page: 0, Content: "Hello world", PublicKey: pub}

	b, err := l.Append(data, sig, nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if b == nil {
		t.Fatalf("expected a committed block")
	}
	if !l.IsValid() {
		t.Fatalf("expected chain to be valid")
	}
	blocks := l.GetByTitle("T")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block for title T, got %d", len(blocks))
	}
}

// TestTamperDetectionOnReload mirrors scenario S3: mutating stored page
// content and reloading discards the tampered block via repair.
func TestTamperDetectionOnReload(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	path := sb.Path("chain.json")
	l, err := Open(path, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	priv, pub := genKeyPair(t)
	sig := signPage(t, priv, "Hello world", "T", 0)
	data := block.PageData{Title: "T", Page: 0, Content: "Hello world", PublicKey: pub}
	if _, err := l.Append(data, sig, nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chain file: %v", err)
	}
	tampered := strings.Replace(string(raw), "Hello world", "Hello World", 1)
	if tampered == string(raw) {
		t.Fatalf("expected replacement to change file contents")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write tampered file: %v", err)
	}

	reloaded, err := Open(path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.Length() != 1 {
		t.Fatalf("expected repair to truncate to genesis only, got length %d", reloaded.Length())
	}
	if !reloaded.IsValid() {
		t.Fatalf("expected repaired chain to be valid")
	}
}

func TestAppendRejectsWhenCancelled(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	l, err := Open(sb.Path("chain.json"), 8)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	priv, pub := genKeyPair(t)
	sig := signPage(t, priv, "content", "T", 0)
	data := block.PageData{Title: "T", Page: 0, Content: "content", PublicKey: pub}

	var cancel Cancel
	cancel.Set()

	got, err := l.Append(data, sig, &cancel)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got != nil {
		t.Fatalf("expected cancelled append to return nil block")
	}
	if l.Length() != 1 {
		t.Fatalf("expected chain to be unmutated by a cancelled append, got length %d", l.Length())
	}
}

func TestRewindTo(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	l, err := Open(sb.Path("chain.json"), 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	priv, pub := genKeyPair(t)
	for i := 0; i < 3; i++ {
		sig := signPage(t, priv, "content", "T", i)
		data := block.PageData{Title: "T", Page: i, Content: "content", PublicKey: pub}
		if _, err := l.Append(data, sig, nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if l.Length() != 4 {
		t.Fatalf("expected 4 blocks (genesis + 3), got %d", l.Length())
	}

	if !l.RewindTo(1) {
		t.Fatalf("expected rewind to succeed")
	}
	if l.Length() != 2 {
		t.Fatalf("expected length 2 after rewind, got %d", l.Length())
	}
	if !l.IsValid() {
		t.Fatalf("expected chain to remain valid after rewind")
	}
	if len(l.GetByTitle("T")) != 1 {
		t.Fatalf("expected title index to reflect only remaining blocks")
	}
}

func TestRewindToRejectsOutOfRange(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	l, err := Open(sb.Path("chain.json"), 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.RewindTo(0) {
		t.Fatalf("expected rewind to genesis (0) to be rejected")
	}
	if l.RewindTo(5) {
		t.Fatalf("expected rewind beyond chain length to be rejected")
	}
}

func TestGetRangeClamps(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	l, err := Open(sb.Path("chain.json"), 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	priv, pub := genKeyPair(t)
	for i := 0; i < 2; i++ {
		sig := signPage(t, priv, "content", "T", i)
		data := block.PageData{Title: "T", Page: i, Content: "content", PublicKey: pub}
		if _, err := l.Append(data, sig, nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got := l.GetRange(0, 100)
	if len(got) != 3 {
		t.Fatalf("expected range clamped to chain length 3, got %d", len(got))
	}
	if len(l.GetRange(5, 10)) != 0 {
		t.Fatalf("expected out-of-bounds range to be empty")
	}
}

func TestOpenCreatesChainDirectory(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()

	path := filepath.Join(sb.Root, "nested", "dir", "chain.json")
	l, err := Open(path, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.Length() != 1 {
		t.Fatalf("expected a fresh genesis-only chain")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected chain file to be created: %v", err)
	}
}
