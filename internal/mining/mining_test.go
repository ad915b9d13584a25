package mining

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/docdigest"
	"github.com/TorporOverload/DocChainValidator/internal/ledger"
	"github.com/TorporOverload/DocChainValidator/internal/signing"
	"github.com/TorporOverload/DocChainValidator/internal/testutil"
)

type fakeLock struct {
	mu      sync.Mutex
	holder  bool
	denyNext int32
}

func (f *fakeLock) RequestMiningLock() bool {
	if atomic.LoadInt32(&f.denyNext) > 0 {
		atomic.AddInt32(&f.denyNext, -1)
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder {
		return false
	}
	f.holder = true
	return true
}

func (f *fakeLock) ReleaseMiningLock() {
	f.mu.Lock()
	f.holder = false
	f.mu.Unlock()
}

type fakeSync struct {
	inProgress atomic.Bool
}

func (f *fakeSync) SyncInProgress() bool { return f.inProgress.Load() }

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })
	l, err := ledger.Open(sb.Path("chain.json"), 1)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

func pageTask(t *testing.T, title string, n int) DocumentTask {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub, err := signing.PublicKeyToPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	task := DocumentTask{Title: title}
	for i := 0; i < n; i++ {
		content := title + string(rune('a'+i))
		digest := docdigest.Page(content, title, i+1)
		sig, err := signing.Sign(digest, key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		task.Pages = append(task.Pages, Page{
			Data:      block.PageData{Title: title, Page: i, Content: content, PublicKey: pub},
			Signature: sig,
		})
	}
	return task
}

func TestWorkerMinesQueuedDocument(t *testing.T) {
	l := newTestLedger(t)
	lock := &fakeLock{}
	sync := &fakeSync{}
	w := NewWorker(l, lock, sync)

	go w.Run()
	defer w.Stop()

	w.Enqueue(pageTask(t, "Doc", 2))

	deadline := time.Now().Add(3 * time.Second)
	for l.Length() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.Length() != 3 {
		t.Fatalf("expected genesis + 2 mined pages, got length %d", l.Length())
	}
	if len(l.GetByTitle("Doc")) != 2 {
		t.Fatalf("expected 2 indexed blocks for Doc")
	}
}

func TestWorkerPausesDuringSync(t *testing.T) {
	l := newTestLedger(t)
	lock := &fakeLock{}
	sync := &fakeSync{}
	sync.inProgress.Store(true)
	w := NewWorker(l, lock, sync)

	go w.Run()
	defer w.Stop()

	w.Enqueue(pageTask(t, "Doc", 1))
	time.Sleep(100 * time.Millisecond)
	if l.Length() != 1 {
		t.Fatalf("expected no mining progress while sync in progress, got length %d", l.Length())
	}

	sync.inProgress.Store(false)
	deadline := time.Now().Add(3 * time.Second)
	for l.Length() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.Length() != 2 {
		t.Fatalf("expected mining to resume once sync cleared, got length %d", l.Length())
	}
}

func TestInterruptCurrentReenqueuesRemainder(t *testing.T) {
	l := newTestLedger(t)
	lock := &fakeLock{}
	sync := &fakeSync{}
	w := NewWorker(l, lock, sync)

	go w.Run()
	defer w.Stop()

	w.Enqueue(pageTask(t, "Doc", 3))

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsWorking() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	w.InterruptCurrent()

	w.mu.Lock()
	requeued := len(w.queue) > 0
	w.mu.Unlock()
	if !requeued {
		t.Logf("interrupt may have raced past completion; queue empty is acceptable if chain already reached full length")
	}
}
