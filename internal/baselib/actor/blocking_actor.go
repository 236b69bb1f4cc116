package actor

import (
	"context"
	"iter"

	"github.com/gammazero/deque"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Received is the caller-visible view of a dequeued mailbox entry: the
// message, plus a Reply hook that completes the sender's Ask promise. Reply
// is a no-op for messages sent with Tell.
type Received[M Message, R any] struct {
	Message M

	reply func(fn.Result[R])
}

// Reply completes the originating Ask's Future with result. Calling Reply
// on a message that was sent with Tell is harmless and has no effect.
func (r Received[M, R]) Reply(result fn.Result[R]) {
	if r.reply != nil {
		r.reply(result)
	}
}

func toReceived[M Message, R any](env envelope[M, R]) Received[M, R] {
	rec := Received[M, R]{Message: env.message}
	if env.promise != nil {
		promise := env.promise
		rec.reply = func(result fn.Result[R]) { promise.Complete(result) }
	}
	return rec
}

// BlockingActor implements spec §4.6's synchronous actor: rather than a
// cooperative ActorBehavior callback invoked once per message, code calls
// Receive and blocks the calling goroutine (intended to be one running on a
// thread checked out from a PrivateThreadPool) until a message matching a
// supplied predicate arrives. Messages that do not match are stashed, in
// arrival order, for the next call to Receive to consider first — the
// "stash" behavior the original's blocking_actor gets from its mailbox's
// skip/peek machinery.
//
// BlockingActor wraps any Mailbox[M, R], so it can sit on top of either
// ChannelMailbox or LockFreeMailbox.
type BlockingActor[M Message, R any] struct {
	mailbox Mailbox[M, R]
	ctx     context.Context

	stash *deque.Deque[envelope[M, R]]

	next func() (envelope[M, R], bool)
	stop func()
}

// NewBlockingActor returns a BlockingActor reading from mailbox, whose
// lifetime is governed by ctx.
func NewBlockingActor[M Message, R any](
	ctx context.Context, mailbox Mailbox[M, R],
) *BlockingActor[M, R] {
	ba := &BlockingActor[M, R]{
		mailbox: mailbox,
		ctx:     ctx,
		stash:   deque.New[envelope[M, R]](),
	}
	ba.next, ba.stop = iter.Pull(mailbox.Receive(ctx))
	return ba
}

// Receive blocks until a message satisfying predicate is available (either
// from the stash or the mailbox), the context passed to NewBlockingActor is
// cancelled, or the mailbox is closed and fully drained. The second return
// value is false exactly when no such message will ever arrive.
func (b *BlockingActor[M, R]) Receive(predicate func(M) bool) (Received[M, R], bool) {
	if env, ok := b.scanStash(predicate); ok {
		return toReceived[M, R](env), true
	}

	for {
		env, ok := b.next()
		if !ok {
			return Received[M, R]{}, false
		}
		if predicate(env.message) {
			return toReceived[M, R](env), true
		}
		b.stash.PushBack(env)
	}
}

// scanStash walks the stash exactly once (its length at entry), popping
// from the front and pushing non-matches to the back, preserving arrival
// order among the messages that remain stashed.
func (b *BlockingActor[M, R]) scanStash(predicate func(M) bool) (envelope[M, R], bool) {
	n := b.stash.Len()
	for i := 0; i < n; i++ {
		env := b.stash.PopFront()
		if predicate(env.message) {
			return env, true
		}
		b.stash.PushBack(env)
	}
	return envelope[M, R]{}, false
}

// StashLen returns the number of messages currently held back awaiting a
// future Receive call whose predicate matches them.
func (b *BlockingActor[M, R]) StashLen() int {
	return b.stash.Len()
}

// Close releases the underlying mailbox iterator. Callers should call
// Close once they are done issuing Receive calls, typically right before
// the private thread running this actor returns.
func (b *BlockingActor[M, R]) Close() {
	if b.stop != nil {
		b.stop()
	}
}
