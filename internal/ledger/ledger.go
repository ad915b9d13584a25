// Package ledger implements the append-only, proof-of-work chain of page
// blocks: persistence, validation, the title index, and rewind-on-fork.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/docdigest"
	"github.com/TorporOverload/DocChainValidator/internal/errs"
	"github.com/TorporOverload/DocChainValidator/internal/signing"
)

// DefaultDifficulty is the default number of leading hex zeros a block's
// current_hash must carry.
const DefaultDifficulty = 3

// MaxFutureDrift bounds how far into the future a block's timestamp may sit
// relative to the validator's clock.
const MaxFutureDrift = 60 * time.Second

// Cancel is a cooperative, idempotent cancellation flag observed by Mine
// once per nonce attempt. The zero value is ready to use.
type Cancel struct {
	mu  sync.Mutex
	set bool
}

// Set marks the flag cancelled. Idempotent.
func (c *Cancel) Set() {
	c.mu.Lock()
	c.set = true
	c.mu.Unlock()
}

// IsSet reports whether Set has been called.
func (c *Cancel) IsSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set
}

// cancelledNonce is the sentinel nonce Mine returns when the attempt is
// aborted by a Cancel flag rather than completed.
const cancelledNonce = -1

// Ledger is the chain of page blocks: one reentrant-by-convention lock
// guards mutation, persistence, and the document index, following the
// "held" (caller already owns the lock) vs "top-level" (acquires then calls
// held) split rather than an actually-reentrant mutex.
type Ledger struct {
	mu         sync.RWMutex
	path       string
	difficulty int
	chain      []*block.Block
	byTitle    map[string][]*block.Block
	log        *logrus.Entry
}

// Open loads the chain from path if present, otherwise creates and persists
// a mined genesis block. After loading it runs repair, which truncates at
// the first invalid block and rewrites the file, then rebuilds the title
// index from the kept prefix.
func Open(path string, difficulty int) (*Ledger, error) {
	if difficulty <= 0 {
		difficulty = DefaultDifficulty
	}
	l := &Ledger{
		path:       path,
		difficulty: difficulty,
		byTitle:    make(map[string][]*block.Block),
		log:        logrus.WithField("component", "ledger"),
	}

	if _, err := os.Stat(path); err == nil {
		if err := l.load(); err != nil {
			return nil, fmt.Errorf("load chain: %w", err)
		}
		removed := l.repairHeld()
		if removed > 0 {
			l.log.Warnf("validate_and_repair: truncated %d invalid trailing block(s)", removed)
			if err := l.saveHeld(); err != nil {
				l.log.Errorf("save after repair: %v", err)
			}
		}
		l.rebuildIndexHeld()
		return l, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat chain file: %w", err)
	}

	genesis := block.NewGenesis()
	mineHeld(genesis, difficulty, nil)
	l.chain = []*block.Block{genesis}
	l.rebuildIndexHeld()
	if err := l.saveHeld(); err != nil {
		return nil, fmt.Errorf("persist genesis: %w", err)
	}
	l.log.Info("created fresh chain with mined genesis block")
	return l, nil
}

// Latest returns the chain tip, or nil for an empty chain (which happens
// before Open has installed a genesis block, or after Open's repair has
// discarded a loaded chain whose genesis block is invalid).
func (l *Ledger) Latest() *block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latestHeld()
}

func (l *Ledger) latestHeld() *block.Block {
	if len(l.chain) == 0 {
		return nil
	}
	return l.chain[len(l.chain)-1]
}

// Length returns the current chain length.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Append mines and commits a new page block on top of the current tip. PoW
// runs without holding the lock; the lock is re-acquired to validate
// against the (possibly moved) tip and commit atomically. Returns nil,nil
// if the attempt is cancelled via cancel.
func (l *Ledger) Append(data block.PageData, signature string, cancel *Cancel) (*block.Block, error) {
	l.mu.RLock()
	prev := l.latestHeld()
	l.mu.RUnlock()
	if prev == nil {
		return nil, fmt.Errorf("%w: chain has no tip to extend", errs.ErrValidation)
	}

	candidate := block.NewPageBlock(prev.Index+1, prev.CurrentHash, time.Now().Unix(), data, signature)
	nonce, hash, err := mine(candidate, l.difficulty, cancel)
	if err != nil {
		return nil, fmt.Errorf("proof of work: %w", err)
	}
	if nonce == cancelledNonce {
		return nil, nil
	}
	candidate.Nonce = nonce
	candidate.CurrentHash = hash

	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.latestHeld()
	if tip == nil || tip.CurrentHash != prev.CurrentHash {
		return nil, fmt.Errorf("%w: tip moved during proof of work", errs.ErrValidation)
	}
	if !l.validateHeld(candidate, tip) {
		return nil, fmt.Errorf("%w: candidate block failed validation against tip", errs.ErrValidation)
	}

	l.chain = append(l.chain, candidate)
	l.indexHeld(candidate)
	if err := l.saveHeld(); err != nil {
		l.log.Errorf("save after append: %v", err)
	}
	return candidate, nil
}

// AppendValidated commits a block received from a peer after the caller has
// already chosen to accept it as the sequential successor to the tip. It
// still re-validates under lock before mutating state.
func (l *Ledger) AppendValidated(b *block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.latestHeld()
	if !l.validateHeld(b, tip) {
		return fmt.Errorf("%w: block failed validation against tip", errs.ErrValidation)
	}
	l.chain = append(l.chain, b)
	l.indexHeld(b)
	if err := l.saveHeld(); err != nil {
		l.log.Errorf("save after append: %v", err)
	}
	return nil
}

// Validate checks b against previous using the full rule set: index
// successor, previous-hash link, self-hash recompute, leading-zero
// difficulty, timestamp monotonicity and future bound, and (for page
// records) signature verification over the recomputed page digest.
func (l *Ledger) Validate(b, previous *block.Block) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validateHeld(b, previous)
}

func (l *Ledger) validateHeld(b, previous *block.Block) bool {
	if b == nil {
		return false
	}
	if previous == nil {
		return validateGenesis(b, l.difficulty)
	}
	if b.Index != previous.Index+1 {
		return false
	}
	if b.PreviousHash != previous.CurrentHash {
		return false
	}
	recomputed, err := b.ComputeHash()
	if err != nil || recomputed != b.CurrentHash {
		return false
	}
	if !block.HasLeadingZeros(b.CurrentHash, l.difficulty) {
		return false
	}
	now := time.Now().Add(MaxFutureDrift).Unix()
	if b.Timestamp > now {
		return false
	}
	if b.Timestamp < previous.Timestamp {
		return false
	}

	pd, ok := b.PageDataRecord()
	if !ok {
		return false
	}
	pub, err := signing.ParsePublicKeyPEM(pd.PublicKey)
	if err != nil {
		return false
	}
	digest := docdigest.Page(pd.Content, pd.Title, pd.Page+1)
	return signing.Verify(digest, b.Signature, pub)
}

func validateGenesis(b *block.Block, difficulty int) bool {
	if b == nil || !b.IsGenesis() {
		return false
	}
	if b.Index != 0 || b.PreviousHash != block.GenesisPreviousHash {
		return false
	}
	recomputed, err := b.ComputeHash()
	if err != nil || recomputed != b.CurrentHash {
		return false
	}
	return block.HasLeadingZeros(b.CurrentHash, difficulty)
}

// IsValid verifies the genesis block specially, then walks the chain
// validating each block against its predecessor.
func (l *Ledger) IsValid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.chain) == 0 {
		return false
	}
	if !validateGenesis(l.chain[0], l.difficulty) {
		return false
	}
	for i := 1; i < len(l.chain); i++ {
		if !l.validateHeld(l.chain[i], l.chain[i-1]) {
			return false
		}
	}
	return true
}

// ReplaceChain validates candidate as a full chain from genesis and, if
// every block checks out, replaces the current chain wholesale. Used for
// fork resolution once rewind-by-one would land on or below genesis, where
// a full resync is simpler and just as correct as chasing single-block
// rewinds through the earliest history.
func (l *Ledger) ReplaceChain(candidate []*block.Block) error {
	if len(candidate) == 0 {
		return fmt.Errorf("%w: empty candidate chain", errs.ErrValidation)
	}
	if !validateGenesis(candidate[0], l.difficulty) {
		return fmt.Errorf("%w: candidate genesis invalid", errs.ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 1; i < len(candidate); i++ {
		if !l.validateHeld(candidate[i], candidate[i-1]) {
			return fmt.Errorf("%w: candidate block %d invalid", errs.ErrValidation, candidate[i].Index)
		}
	}
	l.chain = candidate
	l.rebuildIndexHeld()
	if err := l.saveHeld(); err != nil {
		l.log.Errorf("save after chain replace: %v", err)
	}
	return nil
}

// HasHash reports whether hash already belongs to a committed block,
// letting callers recognize and drop duplicate block announcements.
func (l *Ledger) HasHash(hash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.chain {
		if b.CurrentHash == hash {
			return true
		}
	}
	return false
}

// GetByTitle returns the ordered blocks recorded for title, via the
// document index.
func (l *Ledger) GetByTitle(title string) []*block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	blocks := l.byTitle[title]
	out := make([]*block.Block, len(blocks))
	copy(out, blocks)
	return out
}

// GetRange returns chain[start:end], half-open and clamped to the chain's
// current bounds.
func (l *Ledger) GetRange(start, end int) []*block.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if end > len(l.chain) {
		end = len(l.chain)
	}
	if start >= end {
		return nil
	}
	out := make([]*block.Block, end-start)
	copy(out, l.chain[start:end])
	return out
}

// RewindTo truncates the chain to keep indices [0, i], rebuilds the index,
// and rewrites the persisted file. It returns false for i <= 0 (rewinding
// to or below genesis must instead be handled by the caller as a full
// resync) or i >= length.
func (l *Ledger) RewindTo(i int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i <= 0 || i >= len(l.chain) {
		return false
	}
	l.chain = l.chain[:i+1]
	l.rebuildIndexHeld()
	if err := l.saveHeld(); err != nil {
		l.log.Errorf("save after rewind: %v", err)
	}
	return true
}

func (l *Ledger) indexHeld(b *block.Block) {
	pd, ok := b.PageDataRecord()
	if !ok {
		return
	}
	l.byTitle[pd.Title] = append(l.byTitle[pd.Title], b)
}

func (l *Ledger) rebuildIndexHeld() {
	l.byTitle = make(map[string][]*block.Block)
	for _, b := range l.chain {
		l.indexHeld(b)
	}
	for title := range l.byTitle {
		blocks := l.byTitle[title]
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	}
}

// repairHeld walks the loaded chain and truncates at the first block that
// fails validation against its predecessor, returning the number of
// trailing blocks discarded.
func (l *Ledger) repairHeld() int {
	if len(l.chain) == 0 {
		return 0
	}
	if !validateGenesis(l.chain[0], l.difficulty) {
		removed := len(l.chain)
		l.chain = nil
		return removed
	}
	for i := 1; i < len(l.chain); i++ {
		if i%50 == 0 {
			l.log.Infof("validate_and_repair: checked %d/%d blocks", i, len(l.chain))
		}
		if !l.validateHeld(l.chain[i], l.chain[i-1]) {
			removed := len(l.chain) - i
			l.chain = l.chain[:i]
			return removed
		}
	}
	return 0
}

// saveHeld writes the chain as a JSON array of block.Block records, via a
// .tmp file renamed over the chain file; on load the Data union comes back
// as a generic map.
func (l *Ledger) saveHeld() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create chain directory: %w", err)
	}
	payload, err := json.MarshalIndent(l.chain, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write chain: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace chain file: %w", err)
	}
	return nil
}

func (l *Ledger) load() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read chain file: %w", err)
	}
	var chain []*block.Block
	if err := json.Unmarshal(raw, &chain); err != nil {
		return fmt.Errorf("parse chain file: %w", err)
	}
	l.chain = chain
	return nil
}

// mine repeatedly hashes candidate under increasing nonces until its
// current_hash carries difficulty leading hex zeros, returning the winning
// nonce and hash, or (cancelledNonce, "") if cancel fires first.
func mine(candidate *block.Block, difficulty int, cancel *Cancel) (int64, string, error) {
	for nonce := int64(0); ; nonce++ {
		if cancel != nil && cancel.IsSet() {
			return cancelledNonce, "", nil
		}
		candidate.Nonce = nonce
		hash, err := candidate.ComputeHash()
		if err != nil {
			return 0, "", err
		}
		if block.HasLeadingZeros(hash, difficulty) {
			return nonce, hash, nil
		}
	}
}

// mineHeld mines b in place, panicking only on a hashing error, which would
// indicate a programming bug in the block preimage rather than a runtime
// condition; used for the one-shot genesis block where there is no caller
// to propagate a cancel flag or error to.
func mineHeld(b *block.Block, difficulty int, cancel *Cancel) {
	nonce, hash, err := mine(b, difficulty, cancel)
	if err != nil {
		panic(fmt.Sprintf("mine genesis: %v", err))
	}
	b.Nonce = nonce
	b.CurrentHash = hash
}
