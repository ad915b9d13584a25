package p2p

import (
	"errors"
	"net"
	"time"

	"github.com/TorporOverload/DocChainValidator/internal/transport"
)

// handleOutbound performs the initiator side of the handshake on a freshly
// dialed connection, then enters the message loop.
func (n *Node) handleOutbound(conn net.Conn, endpoint string) {
	defer n.wg.Done()
	pc := newPeerConn("", conn)

	latest := n.ledger.Latest()
	hash := ""
	if latest != nil {
		hash = latest.CurrentHash
	}
	hello := helloPayload{
		PeerID:          n.selfID,
		ProtocolVersion: ProtocolVersion,
		ChainHeight:     n.ledger.Length(),
		LatestHash:      hash,
	}
	if err := n.send(pc, TypeHello, hello); err != nil {
		n.log.Warnf("send HELLO to %s: %v", endpoint, err)
		_ = conn.Close()
		return
	}

	msg, err := transport.Receive(conn)
	if err != nil {
		n.log.Warnf("receive WELCOME from %s: %v", endpoint, err)
		_ = conn.Close()
		return
	}
	if msg.Type != TypeWelcome {
		n.log.Warnf("expected WELCOME from %s, got %s", endpoint, msg.Type)
		_ = conn.Close()
		return
	}
	var welcome welcomePayload
	if err := transport.DecodePayload(msg, &welcome); err != nil {
		n.log.Warnf("decode WELCOME from %s: %v", endpoint, err)
		_ = conn.Close()
		return
	}

	n.completeHandshake(pc, welcome.PeerID, endpoint, welcome.ChainHeight, welcome.LatestHash, true)
}

// handleInbound performs the accepter side of the handshake on an accepted
// connection, then enters the message loop.
func (n *Node) handleInbound(conn net.Conn) {
	defer n.wg.Done()
	pc := newPeerConn("", conn)

	msg, err := transport.Receive(conn)
	if err != nil {
		n.log.Warnf("receive HELLO: %v", err)
		_ = conn.Close()
		return
	}
	if msg.Type != TypeHello {
		n.log.Warnf("expected HELLO, got %s", msg.Type)
		_ = conn.Close()
		return
	}
	var hello helloPayload
	if err := transport.DecodePayload(msg, &hello); err != nil {
		n.log.Warnf("decode HELLO: %v", err)
		_ = conn.Close()
		return
	}

	latest := n.ledger.Latest()
	hash := ""
	if latest != nil {
		hash = latest.CurrentHash
	}
	welcome := welcomePayload{PeerID: n.selfID, ChainHeight: n.ledger.Length(), LatestHash: hash}
	if err := n.send(pc, TypeWelcome, welcome); err != nil {
		n.log.Warnf("send WELCOME to %s: %v", hello.PeerID, err)
		_ = conn.Close()
		return
	}

	endpoint := conn.RemoteAddr().String()
	n.completeHandshake(pc, hello.PeerID, endpoint, hello.ChainHeight, hello.LatestHash, false)
}

// completeHandshake registers the peer, persists its endpoint, and starts
// the read loop. If peerID is already registered, the new socket is closed
// per the duplicate-connection rule.
//
// triggerSync is true only for the initiator, who reacts to the accepter's
// WELCOME; the accepter reacts to divergence later via its own PING/PONG
// cycle rather than from the HELLO it just received, so that a mutual
// handshake does not race two independent full resyncs against each other.
func (n *Node) completeHandshake(pc *peerConn, peerID, endpoint string, peerHeight int, peerHash string, triggerSync bool) {
	pc.peerID = peerID
	if !n.conns.putIfAbsent(peerID, pc) {
		n.log.Infof("duplicate connection from already-registered peer %s, closing", peerID)
		_ = pc.conn.Close()
		return
	}
	n.peers.put(peerID, endpoint)
	if err := n.peers.save(); err != nil {
		n.log.Warnf("persist peer set: %v", err)
	}
	n.log.Infof("handshake complete with peer %s (%s)", peerID, endpoint)

	if triggerSync {
		n.maybeInitiateSync(pc, peerHeight, peerHash)
	}
	n.readLoop(pc)
}

// send marshals v as a msgType frame and writes it under the peer's write
// mutex, since ping, sync, and broadcast callers may write concurrently.
func (n *Node) send(pc *peerConn, msgType string, v any) error {
	msg, err := transport.NewMessage(msgType, v)
	if err != nil {
		return err
	}
	pc.wmu.Lock()
	defer pc.wmu.Unlock()
	return transport.Send(pc.conn, msg)
}

// readLoop owns the single reader task for pc's socket: it blocks on
// Receive, applies the socket read timeout, and dispatches each message in
// arrival order until the connection closes or shutdown is requested.
func (n *Node) readLoop(pc *peerConn) {
	defer n.disconnect(pc)
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		if deadline, ok := pc.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = deadline.SetReadDeadline(time.Now().Add(SocketReadTimeout))
		}

		msg, err := transport.Receive(pc.conn)
		if err != nil {
			if isTimeout(err) {
				select {
				case <-n.stopCh:
					return
				default:
					continue
				}
			}
			n.log.Infof("peer %s disconnected: %v", pc.peerID, err)
			return
		}

		n.dispatch(pc, msg)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// dispatch maps a frame's Type to its handler; unknown tags are logged and
// dropped rather than causing a disconnect, since a newer peer may speak a
// superset of this protocol version.
func (n *Node) dispatch(pc *peerConn, msg transport.Message) {
	switch msg.Type {
	case TypePing:
		n.handlePing(pc, msg)
	case TypePong:
		n.handlePong(pc, msg)
	case TypeGetBlocks:
		n.handleGetBlocks(pc, msg)
	case TypeBlocks:
		n.handleBlocks(pc, msg)
	case TypeNewBlock:
		n.handleNewBlock(pc, msg)
	case TypeMiningStart:
		n.lock.observeStart(pc.peerID, n.onLockExpire)
	case TypeMiningFinish:
		n.lock.observeFinish(pc.peerID)
	default:
		n.log.Warnf("unknown message type %q from %s", msg.Type, pc.peerID)
	}
}

func (n *Node) handlePing(pc *peerConn, msg transport.Message) {
	var ping pingPongPayload
	if err := transport.DecodePayload(msg, &ping); err != nil {
		n.log.Warnf("decode PING from %s: %v", pc.peerID, err)
		return
	}
	latest := n.ledger.Latest()
	hash := ""
	if latest != nil {
		hash = latest.CurrentHash
	}
	pong := pingPongPayload{ChainHeight: n.ledger.Length(), LatestHash: hash}
	if err := n.send(pc, TypePong, pong); err != nil {
		n.log.Warnf("send PONG to %s: %v", pc.peerID, err)
	}
}

func (n *Node) handlePong(pc *peerConn, msg transport.Message) {
	var pong pingPongPayload
	if err := transport.DecodePayload(msg, &pong); err != nil {
		n.log.Warnf("decode PONG from %s: %v", pc.peerID, err)
		return
	}
	n.maybeInitiateSync(pc, pong.ChainHeight, pong.LatestHash)
}

func (n *Node) broadcastExcept(except string, msgType string, v any) {
	for _, c := range n.conns.all() {
		if c.peerID == except {
			continue
		}
		if err := n.send(c, msgType, v); err != nil {
			n.log.Warnf("broadcast %s to %s: %v", msgType, c.peerID, err)
			n.disconnect(c)
		}
	}
}

