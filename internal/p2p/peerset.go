package p2p

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// peerSet is the durable mapping from peer_id to "host:port", persisted
// across restarts.
type peerSet struct {
	mu   sync.RWMutex
	path string
	eps  map[string]string
}

func newPeerSet(path string) *peerSet {
	return &peerSet{path: path, eps: make(map[string]string)}
}

func (p *peerSet) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read peers file: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Unmarshal(raw, &p.eps)
}

func (p *peerSet) save() error {
	p.mu.RLock()
	snapshot := make(map[string]string, len(p.eps))
	for k, v := range p.eps {
		snapshot[k] = v
	}
	p.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create peers directory: %w", err)
	}
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal peers: %w", err)
	}
	return os.WriteFile(p.path, payload, 0o644)
}

func (p *peerSet) put(peerID, endpoint string) {
	p.mu.Lock()
	p.eps[peerID] = endpoint
	p.mu.Unlock()
}

func (p *peerSet) endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.eps))
	for _, ep := range p.eps {
		out = append(out, ep)
	}
	return out
}

func (p *peerSet) snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.eps))
	for k, v := range p.eps {
		out[k] = v
	}
	return out
}

// connTable is the transient mapping from peer_id to its open connection,
// guarded by its own lock per the spec's per-collection locking discipline.
type connTable struct {
	mu    sync.RWMutex
	conns map[string]*peerConn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*peerConn)}
}

// putIfAbsent registers c under peerID and returns true, unless peerID is
// already present, in which case it returns false and the caller must close
// the duplicate socket.
func (t *connTable) putIfAbsent(peerID string, c *peerConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.conns[peerID]; exists {
		return false
	}
	t.conns[peerID] = c
	return true
}

func (t *connTable) remove(peerID string) {
	t.mu.Lock()
	delete(t.conns, peerID)
	t.mu.Unlock()
}

func (t *connTable) get(peerID string) (*peerConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[peerID]
	return c, ok
}

func (t *connTable) all() []*peerConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*peerConn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

// peerConn wraps one connected peer's socket with a write mutex: per the
// design, writes from the ping task, the sync task, and the broadcaster
// must be serialized per socket even though reads happen on a single
// dedicated reader goroutine.
type peerConn struct {
	peerID string
	conn   net.Conn
	wmu    sync.Mutex
}

func newPeerConn(peerID string, conn net.Conn) *peerConn {
	return &peerConn{peerID: peerID, conn: conn}
}
