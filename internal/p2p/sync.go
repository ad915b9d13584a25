package p2p

import (
	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/transport"
)

// syncState tracks the single in-flight sync session, guarded by syncMu.
type syncState struct {
	peer    *peerConn
	rewinds int
}

// maybeInitiateSync starts a pull from pc if its advertised height exceeds
// ours, or matches but the tip hash diverges, and no sync is already in
// flight; per the design at most one sync runs at a time.
func (n *Node) maybeInitiateSync(pc *peerConn, peerHeight int, peerHash string) {
	ourHeight := n.ledger.Length()
	ourHash := n.tipHash()

	diverges := peerHeight > ourHeight || (peerHeight == ourHeight && peerHash != ourHash)
	if !diverges {
		return
	}

	n.syncMu.Lock()
	if n.syncInProgress {
		n.syncMu.Unlock()
		return
	}
	n.syncInProgress = true
	n.session = &syncState{peer: pc}
	n.syncMu.Unlock()

	if peerHeight == ourHeight {
		// Same height, divergent tip: our own next-index request would be
		// empty on both sides, so go straight to the fork step instead of
		// round-tripping once for nothing.
		n.resolveFork(pc, n.ledger.Latest())
		return
	}
	n.requestBlocks(pc, ourHeight)
}

func (n *Node) tipHash() string {
	if latest := n.ledger.Latest(); latest != nil {
		return latest.CurrentHash
	}
	return ""
}

func (n *Node) completeSync() {
	n.syncMu.Lock()
	n.syncInProgress = false
	n.session = nil
	n.syncMu.Unlock()
}

// currentSyncPeer returns the peer driving the in-flight sync, or nil if
// none is active.
func (n *Node) currentSyncPeer() *peerConn {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	if n.session == nil {
		return nil
	}
	return n.session.peer
}

func (n *Node) requestBlocks(pc *peerConn, start int) {
	if err := n.send(pc, TypeGetBlocks, getBlocksPayload{Start: start}); err != nil {
		n.log.Warnf("request GET_BLOCKS from %s: %v", pc.peerID, err)
		n.completeSync()
	}
}

func (n *Node) handleGetBlocks(pc *peerConn, msg transport.Message) {
	var req getBlocksPayload
	if err := transport.DecodePayload(msg, &req); err != nil {
		n.log.Warnf("decode GET_BLOCKS from %s: %v", pc.peerID, err)
		return
	}
	blocks := n.ledger.GetRange(req.Start, req.Start+ChunkSize)
	if len(blocks) > MaxBlocksPerResponse {
		blocks = blocks[:MaxBlocksPerResponse]
	}
	if err := n.send(pc, TypeBlocks, blocksPayload{Blocks: blocks}); err != nil {
		n.log.Warnf("send BLOCKS to %s: %v", pc.peerID, err)
	}
}

// handleBlocks implements the fork-resolution state machine: sequential
// append, gap fill, or single-block rewind-and-retry, bounded by
// MaxRewindDepth rewinds per session.
func (n *Node) handleBlocks(pc *peerConn, msg transport.Message) {
	if n.currentSyncPeer() != pc {
		return
	}
	var resp blocksPayload
	if err := transport.DecodePayload(msg, &resp); err != nil {
		n.log.Warnf("decode BLOCKS from %s: %v", pc.peerID, err)
		n.completeSync()
		return
	}
	received := resp.Blocks
	if len(received) == 0 {
		n.completeSync()
		return
	}

	if received[0].Index == 0 {
		if err := n.ledger.ReplaceChain(received); err != nil {
			n.log.Warnf("full resync from %s rejected: %v", pc.peerID, err)
			n.completeSync()
			return
		}
		if len(received) >= ChunkSize {
			n.requestBlocks(pc, n.ledger.Length())
			return
		}
		n.completeSync()
		return
	}

	tip := n.ledger.Latest()
	switch {
	case received[0].Index == tip.Index+1 && received[0].PreviousHash == tip.CurrentHash:
		n.appendSequential(pc, received)
	case received[0].Index > tip.Index+1:
		n.requestBlocks(pc, int(tip.Index)+1)
	default:
		n.resolveFork(pc, tip)
	}
}

func (n *Node) appendSequential(pc *peerConn, received []*block.Block) {
	applied := 0
	for _, b := range received {
		if n.ledger.HasHash(b.CurrentHash) {
			applied++
			continue
		}
		if err := n.ledger.AppendValidated(b); err != nil {
			n.log.Warnf("sequential append from %s failed at index %d: %v", pc.peerID, b.Index, err)
			n.completeSync()
			return
		}
		applied++
	}

	if applied >= ChunkSize {
		n.requestBlocks(pc, n.ledger.Length())
		return
	}
	n.completeSync()
}

func (n *Node) resolveFork(pc *peerConn, tip *block.Block) {
	n.syncMu.Lock()
	if n.session != nil {
		n.session.rewinds++
	}
	rewinds := 0
	if n.session != nil {
		rewinds = n.session.rewinds
	}
	n.syncMu.Unlock()

	if rewinds > MaxRewindDepth {
		n.log.Warnf("fork resolution with %s exceeded max rewind depth, aborting sync", pc.peerID)
		n.completeSync()
		return
	}

	if tip.Index <= 1 {
		// A one-block rewind would land on or below genesis, which
		// RewindTo refuses; fall back to a full resync from index 0.
		n.requestBlocks(pc, 0)
		return
	}

	target := int(tip.Index) - 1
	if !n.ledger.RewindTo(target) {
		n.log.Warnf("rewind to %d failed during fork resolution with %s", target, pc.peerID)
		n.completeSync()
		return
	}
	n.requestBlocks(pc, n.ledger.Length())
}

// handleNewBlock validates an announced head block against our tip; on
// acceptance it pre-empts any in-progress mining, commits, and forwards to
// every other peer. An invalid announcement (e.g. missing predecessor) is
// silently dropped; the next ping or gap detection will trigger a pull.
func (n *Node) handleNewBlock(pc *peerConn, msg transport.Message) {
	var payload newBlockPayload
	if err := transport.DecodePayload(msg, &payload); err != nil {
		n.log.Warnf("decode NEW_BLOCK from %s: %v", pc.peerID, err)
		return
	}
	b := payload.Block
	if b == nil {
		return
	}
	if n.ledger.HasHash(b.CurrentHash) {
		return
	}

	tip := n.ledger.Latest()
	if !n.ledger.Validate(b, tip) {
		return
	}

	if n.worker != nil {
		n.worker.InterruptCurrent()
	}
	if err := n.ledger.AppendValidated(b); err != nil {
		n.log.Warnf("accept NEW_BLOCK from %s: %v", pc.peerID, err)
		return
	}
	n.broadcastExcept(pc.peerID, TypeNewBlock, newBlockPayload{Block: b})
}
