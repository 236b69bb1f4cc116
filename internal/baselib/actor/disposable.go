package actor

import "sync"

// Disposable is an idempotent cancellation token, spec §5: "Disposal is
// idempotent." It backs receive-timeouts and any other scheduled one-shot
// action a behavior may need to cancel early (e.g. when a behavior is
// popped before its timeout fires).
type Disposable interface {
	// Dispose cancels the underlying action if it has not already run or
	// been disposed. Calling Dispose more than once has no additional
	// effect.
	Dispose()

	// IsDisposed reports whether Dispose has been called.
	IsDisposed() bool
}

// funcDisposable adapts a plain cancel function into a Disposable,
// guaranteeing the function runs at most once even under concurrent
// Dispose calls.
type funcDisposable struct {
	once   sync.Once
	cancel func()
	done   bool
	mu     sync.Mutex
}

// NewDisposable wraps cancel in a Disposable that invokes it at most once.
func NewDisposable(cancel func()) Disposable {
	return &funcDisposable{cancel: cancel}
}

// Dispose implements Disposable.
func (d *funcDisposable) Dispose() {
	d.once.Do(func() {
		d.mu.Lock()
		d.done = true
		d.mu.Unlock()
		if d.cancel != nil {
			d.cancel()
		}
	})
}

// IsDisposed implements Disposable.
func (d *funcDisposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// noopDisposable is a Disposable that is already disposed, useful as a
// zero-cost placeholder where a real timer was never scheduled.
type noopDisposable struct{}

func (noopDisposable) Dispose()        {}
func (noopDisposable) IsDisposed() bool { return true }

// NoopDisposable returns a Disposable that is permanently in the disposed
// state and whose Dispose call is a cost-free no-op.
func NoopDisposable() Disposable { return noopDisposable{} }
