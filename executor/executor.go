// Package executor provides the flow-controlled handler executor (C7): a
// single worker draining a bounded work queue, so a slow or stuck user
// handler applies backpressure to the replication reader instead of
// growing memory without bound. The shape -- a buffered channel plus one
// worker goroutine, with atomically-counted stats -- follows the
// teacher's JIT compile queue (jit/jit.go's compileQueue/wg).
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ha1tch/pgflow/pgerr"
)

// DefaultQueueSize is the bounded work-list size used when Options.Size
// is zero (spec.md §4.7: "default 256").
const DefaultQueueSize = 256

// Options configures a new Executor.
type Options struct {
	// Size is the bounded queue capacity. Zero means DefaultQueueSize.
	Size int
}

// Executor runs submitted work on a single background goroutine,
// applying backpressure to Submit when the queue is full.
type Executor struct {
	queue   chan func()
	wg      sync.WaitGroup
	closed  atomic.Bool
	closeCh chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
}

// New starts an Executor with its worker goroutine running.
func New(opts Options) *Executor {
	size := opts.Size
	if size <= 0 {
		size = DefaultQueueSize
	}
	e := &Executor{
		queue:   make(chan func(), size),
		closeCh: make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.queue:
			fn()
			e.completed.Add(1)
		case <-e.closeCh:
			// Drain whatever Submit already handed off before Close
			// observed the closed flag, then stop. The queue itself is
			// never closed (see Close), so there's nothing racing a send
			// against a close here.
			for {
				select {
				case fn := <-e.queue:
					fn()
					e.completed.Add(1)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn, blocking until space is available, ctx is
// cancelled, or the executor is closed. A full queue that doesn't drain
// before ctx's deadline surfaces Unavailable ("timed out due to
// backpressure"), per spec.md §4.7.
func (e *Executor) Submit(ctx context.Context, fn func()) error {
	if e.closed.Load() {
		return pgerr.New(pgerr.Incorrect, "executor.Submit", "executor is closed")
	}
	e.submitted.Add(1)
	select {
	case e.queue <- fn:
		return nil
	case <-ctx.Done():
		e.submitted.Add(-1) // never enqueued, so never completed
		return pgerr.Wrap(ctx.Err(), pgerr.Unavailable, "executor.Submit", "timed out due to backpressure")
	case <-e.closeCh:
		e.submitted.Add(-1)
		return pgerr.New(pgerr.Incorrect, "executor.Submit", "executor is closed")
	}
}

// Drain blocks until every submitted task has completed, or ctx is done.
// Polls on a short interval rather than busy-spinning; the worker
// goroutine is the only writer to completed, so this never misses a
// transition.
func (e *Executor) Drain(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if e.completed.Load() >= e.submitted.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return pgerr.Wrap(ctx.Err(), pgerr.Unavailable, "executor.Drain", "timed out waiting for handler queue to drain")
		case <-ticker.C:
		}
	}
}

// Close stops accepting new work and waits for the worker to finish
// whatever is already queued. Idempotent.
//
// The queue channel is never closed: Submit's select (queue send, ctx
// done, closeCh) races a concurrent Close purely through closeCh, so a
// Submit that arrives after Close has started never hits a send on a
// closed channel -- a closed channel is always a ready select case, so
// closing queue while Submit might still be selecting on it would let
// the runtime pick the now-ready "closed send" case and panic.
func (e *Executor) Close() {
	if e.closed.Swap(true) {
		return
	}
	close(e.closeCh)
	e.wg.Wait()
}

// Stats returns (submitted, completed) counts, for metrics export.
func (e *Executor) Stats() (submitted, completed int64) {
	return e.submitted.Load(), e.completed.Load()
}
