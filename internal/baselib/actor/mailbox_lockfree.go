package actor

import (
	"context"
	"iter"
	"sync/atomic"
)

// lfEnqueueResult mirrors the original single_reader_queue's enqueue_result:
// spec §4.3 names three outcomes for a producer's enqueue attempt.
type lfEnqueueResult int

const (
	lfEnqueueSuccess lfEnqueueResult = iota
	lfEnqueueUnblockedReader
	lfEnqueueQueueClosed
)

// lfNode is a singly-linked intrusive list node carrying one envelope. The
// queue is built as a Treiber stack that producers push onto with a single
// CAS; the reader periodically takes the whole stack and reverses it into a
// private FIFO cache (lockFreeMailbox.head), exactly as
// cppa/intrusive/single_reader_queue.hpp's fetch_new_data does.
type lfNode[M Message, R any] struct {
	env  envelope[M, R]
	next *lfNode[M, R]
}

// LockFreeMailbox is a CAS-based multi-producer/single-consumer mailbox,
// grounded on spec §4.3's description of the mailbox queue and on the
// original's single_reader_queue.hpp. Unlike ChannelMailbox it never
// allocates an OS-level channel buffer: the "stack" pointer itself encodes
// three logical states using two distinguished sentinel (dummy) node
// pointers that are never dereferenced:
//
//   - emptyDummy: the queue is empty and the reader is not waiting.
//   - blockedDummy: the queue is empty and the reader is parked, waiting
//     to be woken by the next successful enqueue.
//   - nil: the queue has been closed; all further enqueues fail.
//
// Any other pointer value is the head of a (reverse-order) singly-linked
// list of pending envelopes.
type LockFreeMailbox[M Message, R any] struct {
	stack atomic.Pointer[lfNode[M, R]]

	// head is the reader's private FIFO cache, populated by reversing
	// whatever chain fetchNewData pulls off stack. Accessed only by the
	// single reader goroutine.
	head *lfNode[M, R]

	emptyDummy   *lfNode[M, R]
	blockedDummy *lfNode[M, R]

	// wake signals a parked reader that a producer observed
	// lfEnqueueUnblockedReader and has handed the queue new data.
	wake chan struct{}

	closed atomic.Bool

	actorCtx context.Context
}

// NewLockFreeMailbox creates an empty LockFreeMailbox bound to actorCtx.
// When actorCtx is cancelled, both Send and the Receive iterator return
// promptly, matching ChannelMailbox's lifecycle coupling.
func NewLockFreeMailbox[M Message, R any](actorCtx context.Context) *LockFreeMailbox[M, R] {
	q := &LockFreeMailbox[M, R]{
		emptyDummy:   &lfNode[M, R]{},
		blockedDummy: &lfNode[M, R]{},
		wake:         make(chan struct{}, 1),
		actorCtx:     actorCtx,
	}
	q.stack.Store(q.emptyDummy)
	return q
}

func (q *LockFreeMailbox[M, R]) isDummy(p *lfNode[M, R]) bool {
	return p == q.emptyDummy || p == q.blockedDummy
}

// enqueue performs the CAS loop from single_reader_queue::enqueue.
func (q *LockFreeMailbox[M, R]) enqueue(n *lfNode[M, R]) lfEnqueueResult {
	for {
		e := q.stack.Load()
		if e == nil {
			return lfEnqueueQueueClosed
		}

		if q.isDummy(e) {
			n.next = nil
		} else {
			n.next = e
		}

		if q.stack.CompareAndSwap(e, n) {
			if e == q.blockedDummy {
				return lfEnqueueUnblockedReader
			}
			return lfEnqueueSuccess
		}
	}
}

// Send implements Mailbox. The underlying queue never applies backpressure
// (it has no fixed capacity), so Send only blocks long enough to check for
// cancellation before enqueueing.
func (q *LockFreeMailbox[M, R]) Send(ctx context.Context, env envelope[M, R]) bool {
	if ctx.Err() != nil || q.actorCtx.Err() != nil {
		return false
	}
	return q.TrySend(env)
}

// TrySend implements Mailbox.
func (q *LockFreeMailbox[M, R]) TrySend(env envelope[M, R]) bool {
	if q.actorCtx.Err() != nil {
		return false
	}

	switch q.enqueue(&lfNode[M, R]{env: env}) {
	case lfEnqueueQueueClosed:
		return false
	case lfEnqueueUnblockedReader:
		select {
		case q.wake <- struct{}{}:
		default:
		}
		return true
	default:
		return true
	}
}

// fetchNewData atomically swaps the stack pointer to endPtr, capturing
// whatever chain was there, and reverses it into q.head so the reader sees
// FIFO order. Call only from the reader goroutine.
func (q *LockFreeMailbox[M, R]) fetchNewData(endPtr *lfNode[M, R]) bool {
	for {
		e := q.stack.Load()
		if e == endPtr {
			return false
		}

		if !q.stack.CompareAndSwap(e, endPtr) {
			continue
		}

		if q.isDummy(e) {
			return false
		}

		var chain *lfNode[M, R]
		for e != nil {
			next := e.next
			e.next = chain
			chain = e
			e = next
		}
		if q.head == nil {
			q.head = chain
			return true
		}
		tail := q.head
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = chain
		return true
	}
}

// takeHead pops the front of the reader's FIFO cache, refilling it from the
// stack if the cache is empty. Call only from the reader goroutine.
func (q *LockFreeMailbox[M, R]) takeHead() (*lfNode[M, R], bool) {
	if q.head == nil && !q.fetchNewData(q.emptyDummy) {
		return nil, false
	}
	n := q.head
	q.head = n.next
	return n, true
}

// tryBlock attempts the empty -> blocked transition so the reader can park
// without missing a concurrent enqueue.
func (q *LockFreeMailbox[M, R]) tryBlock() bool {
	return q.stack.CompareAndSwap(q.emptyDummy, q.blockedDummy)
}

// Receive implements Mailbox.
func (q *LockFreeMailbox[M, R]) Receive(ctx context.Context) iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			if n, ok := q.takeHead(); ok {
				if !yield(n.env) {
					return
				}
				continue
			}

			if q.stack.Load() == nil {
				return
			}

			if !q.tryBlock() {
				// A producer raced us and left new data; retry
				// immediately instead of parking.
				continue
			}

			select {
			case <-q.wake:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close implements Mailbox. Must be called from the reader goroutine, since
// it merges any in-flight stack contents into the reader's private cache
// for a subsequent Drain.
func (q *LockFreeMailbox[M, R]) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	q.fetchNewData(nil)
}

// IsClosed implements Mailbox.
func (q *LockFreeMailbox[M, R]) IsClosed() bool {
	return q.closed.Load()
}

// Drain implements Mailbox.
func (q *LockFreeMailbox[M, R]) Drain() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !q.IsClosed() {
			return
		}
		for q.head != nil {
			n := q.head
			q.head = n.next
			if !yield(n.env) {
				return
			}
		}
	}
}
