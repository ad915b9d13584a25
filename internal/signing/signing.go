// Package signing implements the RSA-PSS sign/verify collaborator that
// produces and checks the signature stored alongside every page block. Key
// management (generation, passphrase-protected storage) is out of scope —
// callers supply an already-loaded *rsa.PrivateKey or *rsa.PublicKey.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/TorporOverload/DocChainValidator/internal/errs"
)

// pssOptions mirrors MGF1-SHA256 with maximum salt length, the scheme the
// original signing collaborator used.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Sign produces a hex-encoded RSA-PSS signature over the UTF-8 bytes of
// digestHex using priv.
func Sign(digestHex string, priv *rsa.PrivateKey) (string, error) {
	hashed := sha256.Sum256([]byte(digestHex))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, hashed[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks that signatureHex is a valid RSA-PSS signature over the
// UTF-8 bytes of digestHex under pub. It never returns an error for an
// invalid signature — a false return is the expected outcome for tampered
// content.
func Verify(digestHex, signatureHex string, pub *rsa.PublicKey) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	hashed := sha256.Sum256([]byte(digestHex))
	return rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, pssOptions) == nil
}

// ParsePublicKeyPEM parses a PEM-encoded SubjectPublicKeyInfo block into an
// *rsa.PublicKey, the form stored as Block.Data.PublicKey in the ledger.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: not a PEM block", errs.ErrKey)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", errs.ErrKey)
	}
	return rsaPub, nil
}

// ParsePrivateKeyPEM parses an unencrypted PKCS#1 or PKCS#8 PEM private key.
// Passphrase-protected keys are handled by the external key-management
// collaborator, not here.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("%w: not a PEM block", errs.ErrKey)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", errs.ErrKey)
	}
	return rsaKey, nil
}

// PublicKeyToPEM serializes pub as a PEM SubjectPublicKeyInfo block, the form
// stored in the ledger.
func PublicKeyToPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}
