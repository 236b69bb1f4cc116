package actor

import (
	"runtime"
	"sync"
)

// PrivateThreadPool hands out dedicated OS threads to blocking actors,
// grounded on caf/detail/private_thread_pool.{hpp,cpp} and spec §4.4's
// note that blocking actors "run on a private OS thread rather than a
// pooled worker." The original maintains a small fleet of long-lived
// worker threads and a work-stealing-adjacent dequeue of pending nodes;
// Go's runtime makes that bookkeeping unnecessary. A goroutine with
// runtime.LockOSThread held for its lifetime already gives a blocking
// actor exclusive use of one OS thread for as long as it runs, and the
// Go runtime reclaims the thread the moment the goroutine returns and
// unlocks — so PrivateThreadPool only needs to track how many such
// goroutines are currently alive and let callers wait for them to drain.
type PrivateThreadPool struct {
	mu      sync.Mutex
	running int
	wg      sync.WaitGroup
}

// NewPrivateThreadPool returns an empty pool.
func NewPrivateThreadPool() *PrivateThreadPool {
	return &PrivateThreadPool{}
}

// Run starts fn on a new goroutine that holds its OS thread for fn's
// entire execution, then releases it. Run does not block; use Wait to
// block until all threads it has handed out have been released.
func (p *PrivateThreadPool) Run(fn func()) {
	p.mu.Lock()
	p.running++
	p.mu.Unlock()
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.running--
			p.mu.Unlock()
		}()

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		fn()
	}()
}

// Running returns the number of private threads currently checked out.
func (p *PrivateThreadPool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until every thread handed out by Run has been released.
// Callers are responsible for first ensuring the running actors have been
// told to stop; Wait itself never signals shutdown.
func (p *PrivateThreadPool) Wait() {
	p.wg.Wait()
}
