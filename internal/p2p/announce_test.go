package p2p

import (
	"testing"
	"time"
)

// TestAnnounceBlockDeliversToRunningNode covers the path a standalone
// submission CLI uses: it mines a block on its own ledger (not a running
// Node) and pushes it to a live peer with a single handshake-then-announce
// round trip, without ever calling Connect.
func TestAnnounceBlockDeliversToRunningNode(t *testing.T) {
	_, la := newTestNode(t, "127.0.0.1:15841")
	nodeB, lb := newTestNode(t, "127.0.0.1:15842")

	appendSignedPage(t, la, "Announced", 0, "content from a one-shot submitter")
	tip := la.Latest()

	selfID := DerivePeerID("docchainctl-test-submitter")
	if err := AnnounceBlock("127.0.0.1:15842", selfID, la.Length(), tip.CurrentHash, tip); err != nil {
		t.Fatalf("AnnounceBlock: %v", err)
	}

	ok := waitFor(t, 2*time.Second, func() bool {
		return lb.HasHash(tip.CurrentHash)
	})
	if !ok {
		t.Fatalf("expected node B to adopt the announced block")
	}
	_ = nodeB
}
