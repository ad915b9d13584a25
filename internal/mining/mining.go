// Package mining implements the background worker that drives the ledger's
// proof-of-work head extension for queued documents, cooperating with the
// network mining lock and pre-empting on a competing head.
package mining

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/ledger"
)

// pollInterval is how often the worker re-checks sync status or retries
// acquiring the network mining lock.
const pollInterval = 200 * time.Millisecond

// dequeueTimeout bounds how long the worker waits for a queued task before
// looping back to re-check shutdown and sync state.
const dequeueTimeout = 500 * time.Millisecond

// Page is one page record awaiting a signature-backed append.
type Page struct {
	Data      block.PageData
	Signature string
}

// DocumentTask is one submission's ordered pages, all sharing a title and
// public key, mined under a single held network mining lock.
type DocumentTask struct {
	Title string
	Pages []Page
}

// LockCoordinator is the subset of the P2P node's network mining lock the
// worker depends on.
type LockCoordinator interface {
	RequestMiningLock() bool
	ReleaseMiningLock()
}

// SyncStatus reports whether the node currently has a sync in flight; the
// worker pauses while true to avoid wasted proof-of-work on a stale tip.
type SyncStatus interface {
	SyncInProgress() bool
}

// Worker is the single background task owning the FIFO document queue.
type Worker struct {
	ledger *ledger.Ledger
	lock   LockCoordinator
	sync   SyncStatus
	log    *logrus.Entry

	mu      sync.Mutex
	queue   []DocumentTask
	notify  chan struct{}
	working bool
	cancel  *ledger.Cancel

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWorker constructs a worker bound to a ledger and the node's lock/sync
// collaborators. Call Run in its own goroutine to start the loop.
func NewWorker(l *ledger.Ledger, lock LockCoordinator, sync SyncStatus) *Worker {
	return &Worker{
		ledger: l,
		lock:   lock,
		sync:   sync,
		log:    logrus.WithField("component", "mining"),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Enqueue appends a document task to the queue.
func (w *Worker) Enqueue(task DocumentTask) {
	w.mu.Lock()
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// InterruptCurrent sets the cancellation flag observed by any in-progress
// proof-of-work attempt. A no-op if nothing is mining.
func (w *Worker) InterruptCurrent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel.Set()
	}
}

// IsWorking reports whether the worker currently holds the lock and is
// mining a document.
func (w *Worker) IsWorking() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.working
}

// Stop requests a graceful shutdown and blocks until the run loop has
// returned. A document already being mined is not interrupted: its
// remaining pages are mined before the loop exits. A task still waiting for
// the network mining lock is re-enqueued.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Run executes the worker loop until Stop is called. It is intended to run
// in its own goroutine.
func (w *Worker) Run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		if w.sync != nil && w.sync.SyncInProgress() {
			time.Sleep(pollInterval)
			continue
		}

		task, ok := w.dequeue()
		if !ok {
			continue
		}

		if !w.acquireLockOrReenqueue(task) {
			return
		}
	}
}

func (w *Worker) dequeue() (DocumentTask, bool) {
	w.mu.Lock()
	if len(w.queue) > 0 {
		task := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		return task, true
	}
	w.mu.Unlock()

	select {
	case <-w.notify:
	case <-time.After(dequeueTimeout):
	case <-w.stopCh:
	}
	return DocumentTask{}, false
}

// acquireLockOrReenqueue waits for the network mining lock, respecting
// shutdown, and then mines task. It returns false if shutdown fired while
// waiting (the task is re-enqueued and the caller should exit the run
// loop), true otherwise.
func (w *Worker) acquireLockOrReenqueue(task DocumentTask) bool {
	for {
		if w.lock.RequestMiningLock() {
			break
		}
		select {
		case <-w.stopCh:
			w.requeue(task)
			return false
		case <-time.After(pollInterval):
		}
	}

	w.mineTask(task)
	w.lock.ReleaseMiningLock()
	return true
}

// mineTask iterates task's pages in order, invoking ledger Append with a
// fresh cancellation flag per page. It re-enqueues the unmined remainder on
// cancellation, and aborts (without re-enqueuing) on any other append
// failure, which typically means the head moved under a competing block.
func (w *Worker) mineTask(task DocumentTask) {
	w.mu.Lock()
	w.working = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.working = false
		w.cancel = nil
		w.mu.Unlock()
	}()

	for i, page := range task.Pages {
		cancel := &ledger.Cancel{}
		w.mu.Lock()
		w.cancel = cancel
		w.mu.Unlock()

		committed, err := w.ledger.Append(page.Data, page.Signature, cancel)
		if err != nil {
			w.log.Errorf("mining %s page %d: %v", task.Title, page.Data.Page, err)
			return
		}
		if committed == nil {
			if cancel.IsSet() {
				w.log.Infof("mining %s pre-empted at page %d, re-enqueuing remainder", task.Title, page.Data.Page)
				w.requeue(DocumentTask{Title: task.Title, Pages: task.Pages[i:]})
				return
			}
			w.log.Warnf("mining %s page %d rejected without cancellation, abandoning document", task.Title, page.Data.Page)
			return
		}
	}
}

func (w *Worker) requeue(task DocumentTask) {
	w.mu.Lock()
	w.queue = append([]DocumentTask{task}, w.queue...)
	w.mu.Unlock()
}
