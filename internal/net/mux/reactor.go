// Package mux implements the single-threaded, poll(2)-based I/O reactor
// that the middleman owns, per spec §4.7. It is built on
// golang.org/x/sys/unix so the reactor loop matches the original's
// level/edge-triggered poll semantics rather than leaning on goroutine-
// per-connection blocking reads, which would defeat the point of modeling
// a single-threaded multiplexer.
package mux

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/basprt/actorframe/internal/baselib/actor"
)

// Handler is a socket manager: it wraps one file descriptor and an upper
// layer able to react to read/write readiness, per spec §4.8's "A socket
// manager wraps a file descriptor, an upper-layer event layer."
type Handler interface {
	// FD returns the file descriptor this handler owns.
	FD() int

	// HandleReadEvent is invoked when FD is readable.
	HandleReadEvent()

	// HandleWriteEvent is invoked when FD is writable.
	HandleWriteEvent()

	// HandleError is invoked when FD reports an error or hangup
	// condition, or when the reactor is shutting down (err is nil in the
	// shutdown case).
	HandleError(err error)
}

// pendingUpdate captures a registration change queued by RegisterReading,
// RegisterWriting, or Deregister, applied between poll() calls per spec
// §4.7's "Registration is deferred."
type pendingUpdate struct {
	handler           Handler
	fd                int
	reading           bool
	writing           bool
	deregister        bool
	deregisterWriting bool
}

// action is a closure queued via RunAction, executed on the reactor thread.
type action func()

// Reactor is the single-threaded multiplexer described in spec §4.7: a
// vector of (fd, event-mask) entries polled each iteration, plus a
// self-pipe at index 0 used for every cross-thread signal.
type Reactor struct {
	mu       sync.Mutex
	updates  []pendingUpdate
	actions  []action

	handlers map[int]Handler
	reading  map[int]bool
	writing  map[int]bool

	selfPipeR int
	selfPipeW int

	shutdownOnce sync.Once
	done         chan struct{}
}

// controlOp is the BASP-unrelated, reactor-local self-pipe opcode: spec
// §4.7's "1 opcode byte + 8 bytes of payload."
type controlOp byte

const (
	ctrlWake controlOp = iota
	ctrlShutdown
)

// controlFrameSize is the fixed 9-byte self-pipe control frame size.
const controlFrameSize = 9

// New creates a Reactor with its self-pipe open and ready. Call Run to
// start the poll loop; it blocks until Shutdown is called.
func New() (*Reactor, error) {
	fds, err := selfPipe()
	if err != nil {
		return nil, fmt.Errorf("mux: creating self-pipe: %w", err)
	}

	return &Reactor{
		handlers:  make(map[int]Handler),
		reading:   make(map[int]bool),
		writing:   make(map[int]bool),
		selfPipeR: fds[0],
		selfPipeW: fds[1],
		done:      make(chan struct{}),
	}, nil
}

// selfPipe opens a non-blocking pipe and returns {readFD, writeFD}.
func selfPipe() ([2]int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return [2]int{}, err
	}
	return fds, nil
}

// RegisterReading queues h to start (or continue) receiving read-readiness
// events. The change is applied at the next safe point between poll
// iterations.
func (r *Reactor) RegisterReading(h Handler) {
	r.queueUpdate(pendingUpdate{handler: h, fd: h.FD(), reading: true})
}

// RegisterWriting queues h to start (or continue) receiving
// write-readiness events.
func (r *Reactor) RegisterWriting(h Handler) {
	r.queueUpdate(pendingUpdate{handler: h, fd: h.FD(), writing: true})
}

// Deregister queues h for removal from the pollset entirely.
func (r *Reactor) Deregister(h Handler) {
	r.queueUpdate(pendingUpdate{handler: h, fd: h.FD(), deregister: true})
}

// DeregisterWriting queues h's write-readiness interest for removal,
// leaving any existing read-readiness registration for the same fd
// untouched. Used once an outbound write buffer drains so the reactor
// stops waking the goroutine for writability it no longer needs.
func (r *Reactor) DeregisterWriting(h Handler) {
	r.queueUpdate(pendingUpdate{handler: h, fd: h.FD(), deregisterWriting: true})
}

func (r *Reactor) queueUpdate(u pendingUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
	r.wake()
}

// RunAction queues fn to execute on the reactor's own goroutine, per spec
// §4.7's `run_action` opcode, and wakes the reactor so it runs promptly.
func (r *Reactor) RunAction(fn func()) {
	r.mu.Lock()
	r.actions = append(r.actions, fn)
	r.mu.Unlock()
	r.wake()
}

// wake writes a 9-byte control frame to the self-pipe so a blocked poll()
// call returns immediately.
func (r *Reactor) wake() {
	var frame [controlFrameSize]byte
	frame[0] = byte(ctrlWake)
	_, _ = unix.Write(r.selfPipeW, frame[:])
}

// Shutdown signals the reactor loop to drain, dispose every registered
// handler, and exit. It is idempotent and safe to call from any goroutine.
func (r *Reactor) Shutdown() {
	r.shutdownOnce.Do(func() {
		var frame [controlFrameSize]byte
		frame[0] = byte(ctrlShutdown)
		_, _ = unix.Write(r.selfPipeW, frame[:])
	})
}

// applyUpdates drains queued registration changes into the handler/pollset
// maps. Called only between poll() iterations, per spec §4.7's "apply
// updates at a safe point ... without invalidating the iteration."
func (r *Reactor) applyUpdates() {
	r.mu.Lock()
	updates := r.updates
	r.updates = nil
	pendingActions := r.actions
	r.actions = nil
	r.mu.Unlock()

	for _, u := range updates {
		if u.deregister {
			delete(r.handlers, u.fd)
			delete(r.reading, u.fd)
			delete(r.writing, u.fd)
			continue
		}
		if u.deregisterWriting {
			delete(r.writing, u.fd)
			continue
		}
		r.handlers[u.fd] = u.handler
		if u.reading {
			r.reading[u.fd] = true
		}
		if u.writing {
			r.writing[u.fd] = true
		}
	}

	for _, fn := range pendingActions {
		fn()
	}
}

// buildPollSet returns the slice of unix.PollFd entries to poll this
// iteration, with the self-pipe always at index 0.
func (r *Reactor) buildPollSet() []unix.PollFd {
	fds := make([]unix.PollFd, 0, len(r.handlers)+1)
	fds = append(fds, unix.PollFd{Fd: int32(r.selfPipeR), Events: unix.POLLIN})

	for fd := range r.handlers {
		var events int16
		if r.reading[fd] {
			events |= unix.POLLIN
		}
		if r.writing[fd] {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	return fds
}

// Run executes the reactor's poll loop until Shutdown is called or a fatal
// poll error occurs. It must be called from the goroutine that is to act
// as "the reactor thread" — the middleman runs this in its own dedicated
// goroutine.
func (r *Reactor) Run() error {
	defer close(r.done)

	for {
		r.applyUpdates()

		fds := r.buildPollSet()
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.ENOMEM {
				// Transient per spec §4.7; retry.
				continue
			}
			log.ErrorS(context.Background(), "reactor poll failed, disposing handlers", err)
			r.disposeAll(err)
			return fmt.Errorf("mux: poll: %w", err)
		}
		if n == 0 {
			continue
		}

		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}

			if int(pfd.Fd) == r.selfPipeR {
				if shutdown := r.drainSelfPipe(); shutdown {
					r.disposeAll(nil)
					return nil
				}
				continue
			}

			h, ok := r.handlers[int(pfd.Fd)]
			if !ok {
				continue
			}

			switch {
			case pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0:
				h.HandleError(fmt.Errorf("mux: fd %d: error/hangup", pfd.Fd))
			default:
				if pfd.Revents&unix.POLLIN != 0 {
					h.HandleReadEvent()
				}
				if pfd.Revents&unix.POLLOUT != 0 {
					h.HandleWriteEvent()
				}
			}
		}
	}
}

// drainSelfPipe reads and discards pending control frames, returning true
// if any of them was a shutdown frame.
func (r *Reactor) drainSelfPipe() bool {
	buf := make([]byte, 256)
	shutdown := false
	for {
		n, err := unix.Read(r.selfPipeR, buf)
		if n <= 0 || err != nil {
			break
		}
		for i := 0; i+controlFrameSize <= n; i += controlFrameSize {
			if controlOp(buf[i]) == ctrlShutdown {
				shutdown = true
			}
		}
		if n < len(buf) {
			break
		}
	}
	return shutdown
}

func (r *Reactor) disposeAll(err error) {
	if len(r.handlers) > 0 {
		log.DebugS(context.Background(), "disposing reactor handlers", "count", len(r.handlers))
	}
	for _, h := range r.handlers {
		h.HandleError(err)
	}
	r.handlers = make(map[int]Handler)
	r.reading = make(map[int]bool)
	r.writing = make(map[int]bool)
	_ = unix.Close(r.selfPipeR)
	_ = unix.Close(r.selfPipeW)
}

// Done returns a channel closed once Run has returned.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// AsDisposable adapts Reactor's lifecycle to the actor package's Disposable
// contract, letting a middleman treat "stop the reactor" the same way it
// treats any other cancellable resource.
func AsDisposable(r *Reactor) actor.Disposable {
	return actor.NewDisposable(func() { r.Shutdown() })
}
