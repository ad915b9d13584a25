package p2p

import (
	"fmt"
	"net"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/transport"
)

// AnnounceBlock performs a one-shot HELLO/WELCOME handshake against
// endpoint and sends a single NEW_BLOCK announcement for b, then
// disconnects. It exists for callers that mine and append outside a
// running Node (the submission CLI) but still need to push a freshly
// committed block onto the network without waiting for a peer's own
// ping cycle to notice the new tip.
func AnnounceBlock(endpoint, selfID string, chainHeight int, latestHash string, b *block.Block) error {
	conn, err := net.DialTimeout("tcp", endpoint, DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	hello := helloPayload{PeerID: selfID, ProtocolVersion: ProtocolVersion, ChainHeight: chainHeight, LatestHash: latestHash}
	msg, err := transport.NewMessage(TypeHello, hello)
	if err != nil {
		return fmt.Errorf("build HELLO: %w", err)
	}
	if err := transport.Send(conn, msg); err != nil {
		return fmt.Errorf("send HELLO to %s: %w", endpoint, err)
	}
	if _, err := transport.Receive(conn); err != nil {
		return fmt.Errorf("receive WELCOME from %s: %w", endpoint, err)
	}

	announce, err := transport.NewMessage(TypeNewBlock, newBlockPayload{Block: b})
	if err != nil {
		return fmt.Errorf("build NEW_BLOCK: %w", err)
	}
	if err := transport.Send(conn, announce); err != nil {
		return fmt.Errorf("send NEW_BLOCK to %s: %w", endpoint, err)
	}
	return nil
}
