package p2p

import (
	"sync"
	"time"
)

// MiningLockTimeout bounds how long a granted network mining lock survives
// without an explicit release, guaranteeing liveness if the holder crashes.
const MiningLockTimeout = 600 * time.Second

// miningLock is the per-node, cooperatively-broadcast advisory lock
// described by the network mining lock design: at most one peer_id holds it
// at a time, enforced by every honest node observing the same broadcasts.
type miningLock struct {
	mu         sync.Mutex
	inProgress bool
	holder     string
	timer      *time.Timer
}

func newMiningLock() *miningLock {
	return &miningLock{}
}

// requestLocal attempts to acquire the lock for self. On success it starts
// the expiry timer and returns true; onExpire fires if the timer elapses
// without a release.
func (l *miningLock) requestLocal(self string, onExpire func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProgress {
		return false
	}
	l.inProgress = true
	l.holder = self
	l.resetTimerHeld(onExpire)
	return true
}

// releaseLocal clears the lock unconditionally and reports whether the
// release follows a local acquisition (holder == self), which the caller
// uses to decide whether to broadcast MINING_FINISH.
func (l *miningLock) releaseLocal(self string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	wasLocal := l.inProgress && l.holder == self
	l.clearHeld()
	return wasLocal
}

// observeStart handles a remote MINING_START from peer. If the lock is free
// or already held by peer, peer becomes (or remains) holder and the timer
// resets; if held by someone else, the message is ignored.
func (l *miningLock) observeStart(peer string, onExpire func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.inProgress || l.holder == peer {
		l.inProgress = true
		l.holder = peer
		l.resetTimerHeld(onExpire)
	}
}

// observeFinish handles a remote MINING_FINISH from peer, releasing only if
// peer is the current holder.
func (l *miningLock) observeFinish(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProgress && l.holder == peer {
		l.clearHeld()
	}
}

func (l *miningLock) resetTimerHeld(onExpire func()) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(MiningLockTimeout, onExpire)
}

func (l *miningLock) clearHeld() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.inProgress = false
	l.holder = ""
}

func (l *miningLock) snapshot() (inProgress bool, holder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inProgress, l.holder
}
