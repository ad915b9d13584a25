// Package p2p implements the peer-to-peer node: handshake, liveness,
// framed message dispatch, chain synchronization with fork resolution, and
// the cooperative network mining lock.
package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TorporOverload/DocChainValidator/internal/ledger"
)

// PingInterval is how often the liveness task advertises this node's tip to
// every connected peer.
const PingInterval = 25 * time.Second

// RetryInterval is how often the retry-connect task re-attempts failed
// outbound endpoints.
const RetryInterval = 60 * time.Second

// MaxConnectAttempts bounds retries per endpoint before the node gives up
// until an explicit user reconnect.
const MaxConnectAttempts = 3

// DialTimeout bounds the outbound connect attempt.
const DialTimeout = 5 * time.Second

// SocketReadTimeout bounds a single blocking read; on timeout the handler
// loops rather than disconnecting, unless shutdown has been requested.
const SocketReadTimeout = 30 * time.Second

// Interrupter is the subset of the mining worker the node needs to
// pre-empt an in-progress attempt when a competing head arrives.
type Interrupter interface {
	InterruptCurrent()
}

// Config configures a Node.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	PeersPath      string
}

// Node is one peer in the replication network.
type Node struct {
	cfg    Config
	selfID string
	ledger *ledger.Ledger
	worker Interrupter

	listener net.Listener
	conns    *connTable
	peers    *peerSet
	lock     *miningLock

	syncMu         sync.Mutex
	syncInProgress bool
	session        *syncState

	retryMu sync.Mutex
	retries map[string]int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// New constructs a Node bound to l. Call SetWorker before Start if mining
// pre-emption on NEW_BLOCK is required.
func New(cfg Config, l *ledger.Ledger) *Node {
	return &Node{
		cfg:     cfg,
		selfID:  DerivePeerID(cfg.ListenAddr),
		ledger:  l,
		conns:   newConnTable(),
		peers:   newPeerSet(cfg.PeersPath),
		lock:    newMiningLock(),
		retries: make(map[string]int),
		stopCh:  make(chan struct{}),
		log:     logrus.WithField("component", "p2p"),
	}
}

// SetWorker wires the mining worker for NEW_BLOCK pre-emption. Must be
// called before Start if mining is enabled for this node.
func (n *Node) SetWorker(w Interrupter) {
	n.worker = w
}

// PeerID returns this node's derived identity.
func (n *Node) PeerID() string {
	return n.selfID
}

// Start loads the persisted peer set, binds the listener, dials bootstrap
// peers, and launches the accept, ping, and retry-connect loops.
func (n *Node) Start() error {
	if err := n.peers.load(); err != nil {
		n.log.Warnf("load peers file: %v", err)
	}

	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind listen address %s: %w", n.cfg.ListenAddr, err)
	}
	n.listener = ln
	n.log.Infof("node %s listening on %s", n.selfID, n.cfg.ListenAddr)

	n.wg.Add(1)
	go n.acceptLoop()

	n.wg.Add(1)
	go n.pingLoop()

	n.wg.Add(1)
	go n.retryLoop()

	for _, ep := range n.cfg.BootstrapPeers {
		ep := ep
		go func() {
			if err := n.Connect(ep); err != nil {
				n.log.Warnf("bootstrap connect to %s: %v", ep, err)
			}
		}()
	}

	return nil
}

// Close stops accepting connections, signals all worker loops to stop,
// closes sockets, and persists the peer set.
func (n *Node) Close() error {
	n.stopOnce.Do(func() { close(n.stopCh) })
	if n.listener != nil {
		_ = n.listener.Close()
	}
	for _, c := range n.conns.all() {
		_ = c.conn.Close()
	}
	n.wg.Wait()
	if err := n.peers.save(); err != nil {
		n.log.Errorf("save peers file: %v", err)
	}
	return nil
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Errorf("accept: %v", err)
				continue
			}
		}
		n.wg.Add(1)
		go n.handleInbound(conn)
	}
}

// Connect opens an outbound connection to endpoint with a bounded dial
// timeout and performs the initiator side of the handshake.
func (n *Node) Connect(endpoint string) error {
	conn, err := net.DialTimeout("tcp", endpoint, DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	n.wg.Add(1)
	go n.handleOutbound(conn, endpoint)
	return nil
}

func (n *Node) pingLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.broadcastPing()
		}
	}
}

func (n *Node) broadcastPing() {
	latest := n.ledger.Latest()
	height := n.ledger.Length()
	hash := ""
	if latest != nil {
		hash = latest.CurrentHash
	}
	payload := pingPongPayload{ChainHeight: height, LatestHash: hash}
	for _, c := range n.conns.all() {
		if err := n.send(c, TypePing, payload); err != nil {
			n.log.Warnf("ping %s: %v, disconnecting", c.peerID, err)
			n.disconnect(c)
		}
	}
}

func (n *Node) retryLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.retryFailedEndpoints()
		}
	}
}

func (n *Node) retryFailedEndpoints() {
	for _, ep := range n.peers.endpoints() {
		peerID := DerivePeerID(ep)
		if _, connected := n.conns.get(peerID); connected {
			continue
		}
		n.retryMu.Lock()
		attempts := n.retries[ep]
		if attempts >= MaxConnectAttempts {
			n.retryMu.Unlock()
			continue
		}
		n.retries[ep] = attempts + 1
		n.retryMu.Unlock()

		ep := ep
		go func() {
			if err := n.Connect(ep); err != nil {
				n.log.Warnf("retry connect to %s: %v", ep, err)
			}
		}()
	}
}

// SyncInProgress reports whether a chain sync is currently in flight,
// satisfying the mining worker's SyncStatus dependency.
func (n *Node) SyncInProgress() bool {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	return n.syncInProgress
}

// RequestMiningLock attempts to acquire the network mining lock for this
// node, broadcasting MINING_START on success.
func (n *Node) RequestMiningLock() bool {
	granted := n.lock.requestLocal(n.selfID, n.onLockExpire)
	if granted {
		n.broadcastEmpty(TypeMiningStart)
	}
	return granted
}

// ReleaseMiningLock releases the network mining lock if held locally,
// broadcasting MINING_FINISH.
func (n *Node) ReleaseMiningLock() {
	if n.lock.releaseLocal(n.selfID) {
		n.broadcastEmpty(TypeMiningFinish)
	}
}

func (n *Node) onLockExpire() {
	n.log.Warn("network mining lock expired without release")
	n.ReleaseMiningLock()
}

func (n *Node) broadcastEmpty(msgType string) {
	for _, c := range n.conns.all() {
		if err := n.send(c, msgType, emptyPayload{}); err != nil {
			n.log.Warnf("broadcast %s to %s: %v", msgType, c.peerID, err)
			n.disconnect(c)
		}
	}
}

// Stats is a point-in-time snapshot of this node's network and chain
// state, surfaced over the status HTTP endpoint and `docchainctl chain
// status`.
type Stats struct {
	PeerID         string `json:"peer_id"`
	ConnectedPeers int    `json:"connected_peers"`
	KnownPeers     int    `json:"known_peers"`
	ChainHeight    int    `json:"chain_height"`
	LatestHash     string `json:"latest_hash"`
	PendingRetries int    `json:"pending_retries"`
	SyncInProgress bool   `json:"sync_in_progress"`
}

// Stats reports the node's current network and chain state.
func (n *Node) Stats() Stats {
	n.retryMu.Lock()
	pending := 0
	for _, attempts := range n.retries {
		if attempts > 0 {
			pending++
		}
	}
	n.retryMu.Unlock()

	return Stats{
		PeerID:         n.selfID,
		ConnectedPeers: len(n.conns.all()),
		KnownPeers:     len(n.peers.snapshot()),
		ChainHeight:    n.ledger.Length(),
		LatestHash:     n.tipHash(),
		PendingRetries: pending,
		SyncInProgress: n.SyncInProgress(),
	}
}

// Peers returns the known peer_id -> endpoint map, for `docchainctl peers
// list` and the /peers HTTP endpoint.
func (n *Node) Peers() map[string]string {
	return n.peers.snapshot()
}

// AddPeer registers endpoint as a known bootstrap candidate and attempts an
// immediate connection. `docchainctl peers add` does not call it: that
// command writes the peers file directly.
func (n *Node) AddPeer(endpoint string) error {
	n.peers.put(DerivePeerID(endpoint), endpoint)
	if err := n.peers.save(); err != nil {
		n.log.Warnf("persist peer set: %v", err)
	}
	return n.Connect(endpoint)
}

func (n *Node) disconnect(c *peerConn) {
	n.conns.remove(c.peerID)
	_ = c.conn.Close()
}
