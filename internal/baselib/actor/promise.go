package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// promiseImpl is the concrete backing for both Promise[T] and Future[T]: a
// single-assignment result cell signalled by closing done exactly once.
type promiseImpl[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	result    fn.Result[T]
	completed bool
}

// NewPromise returns a new, uncompleted Promise[T].
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{done: make(chan struct{})}
}

// Future returns the Future view of this promise.
func (p *promiseImpl[T]) Future() Future[T] {
	return p
}

// Complete implements Promise. Only the first call sets the result; later
// calls return false and have no effect.
func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed {
		return false
	}
	p.completed = true
	p.result = result
	close(p.done)
	return true
}

// Await implements Future.
func (p *promiseImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply implements Future.
func (p *promiseImpl[T]) ThenApply(ctx context.Context, f func(T) T) Future[T] {
	next := NewPromise[T]()

	go func() {
		result := p.Await(ctx)
		if val, err := result.Unpack(); err == nil {
			result = fn.Ok(f(val))
		}
		next.Complete(result)
	}()

	return next.Future()
}

// OnComplete implements Future.
func (p *promiseImpl[T]) OnComplete(ctx context.Context, f func(fn.Result[T])) {
	go func() {
		f(p.Await(ctx))
	}()
}
