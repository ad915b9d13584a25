package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := genKey(t)
	digest := "deadbeef"

	sig, err := Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(digest, sig, &key.PublicKey) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	key := genKey(t)
	sig, err := Sign("original", key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if Verify("tampered", sig, &key.PublicKey) {
		t.Fatalf("expected verification to fail for a different digest")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key := genKey(t)
	pemStr, err := PublicKeyToPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	pub, err := ParsePublicKeyPEM(pemStr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("decoded modulus mismatch")
	}
}

func TestParsePublicKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKeyPEM("not pem"); err == nil {
		t.Fatalf("expected error for non-PEM input")
	}
}
