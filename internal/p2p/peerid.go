package p2p

import (
	"crypto/sha256"
	"encoding/hex"
)

// peerIDLen is the number of leading hex digits of SHA-256(host:port) used
// to identify a peer.
const peerIDLen = 16

// DerivePeerID computes the peer_id for a host:port endpoint: the first 16
// hex digits of SHA-256(endpoint).
func DerivePeerID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])[:peerIDLen]
}
