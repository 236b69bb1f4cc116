package mux_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basprt/actorframe/internal/net/mux"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pipeHandler wraps the read end of an os-level pipe and records every
// read-readiness event it is handed.
type pipeHandler struct {
	fd    int
	reads int32
	errs  chan error
	once  sync.Once
	done  chan struct{}
}

func newPipeHandler(fd int) *pipeHandler {
	return &pipeHandler{fd: fd, errs: make(chan error, 1), done: make(chan struct{})}
}

func (h *pipeHandler) FD() int { return h.fd }

func (h *pipeHandler) HandleReadEvent() {
	atomic.AddInt32(&h.reads, 1)
	buf := make([]byte, 64)
	_, _ = unix.Read(h.fd, buf)
	h.once.Do(func() { close(h.done) })
}

func (h *pipeHandler) HandleWriteEvent() {}

func (h *pipeHandler) HandleError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

func TestReactorDispatchesReadEvent(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	r, err := mux.New()
	require.NoError(t, err)

	go func() { _ = r.Run() }()
	defer r.Shutdown()

	h := newPipeHandler(fds[0])
	r.RegisterReading(h)

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("reactor never dispatched read event")
	}
}

func TestReactorRunActionExecutesOnReactorGoroutine(t *testing.T) {
	r, err := mux.New()
	require.NoError(t, err)

	go func() { _ = r.Run() }()
	defer r.Shutdown()

	done := make(chan struct{})
	r.RunAction(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued action never ran")
	}
}

func TestReactorShutdownStopsRunAndDisposesHandlers(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK))
	defer unix.Close(fds[1])

	r, err := mux.New()
	require.NoError(t, err)

	runDone := make(chan struct{})
	go func() {
		_ = r.Run()
		close(runDone)
	}()

	h := newPipeHandler(fds[0])
	r.RegisterReading(h)

	// Give the registration a moment to apply before shutting down.
	time.Sleep(10 * time.Millisecond)
	r.Shutdown()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Shutdown")
	}

	select {
	case err := <-h.errs:
		require.NoError(t, err)
	default:
	}
}
