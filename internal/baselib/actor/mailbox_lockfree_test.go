package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockFreeMailboxSendReceiveOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewLockFreeMailbox[testMsg, string](ctx)

	for i := 0; i < 5; i++ {
		ok := mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "m"}})
		require.True(t, ok)
	}

	got := 0
	for range mb.Receive(ctx) {
		got++
		if got == 5 {
			break
		}
	}
	require.Equal(t, 5, got)
}

func TestLockFreeMailboxBlocksUntilSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewLockFreeMailbox[testMsg, string](ctx)

	received := make(chan struct{})
	go func() {
		for range mb.Receive(ctx) {
			close(received)
			return
		}
	}()

	select {
	case <-received:
		t.Fatal("received before any send")
	case <-time.After(30 * time.Millisecond):
	}

	require.True(t, mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "m"}}))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("never woke reader")
	}
}

func TestLockFreeMailboxConcurrentProducers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewLockFreeMailbox[testMsg, string](ctx)

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "m"}})
			}
		}()
	}

	count := 0
	done := make(chan struct{})
	go func() {
		for range mb.Receive(ctx) {
			count++
			if count == producers*perProducer {
				close(done)
				return
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only received %d of %d", count, producers*perProducer)
	}
}

func TestLockFreeMailboxCloseDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewLockFreeMailbox[testMsg, string](ctx)
	require.True(t, mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "a"}}))
	require.True(t, mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "b"}}))

	mb.Close()
	require.True(t, mb.IsClosed())
	require.False(t, mb.TrySend(envelope[testMsg, string]{message: testMsg{kind: "c"}}))

	var drained []string
	for env := range mb.Drain() {
		drained = append(drained, env.message.kind)
	}
	require.Equal(t, []string{"a", "b"}, drained)
}

func TestLockFreeMailboxContextCancelStopsReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mb := NewLockFreeMailbox[testMsg, string](ctx)

	stopped := make(chan struct{})
	go func() {
		for range mb.Receive(ctx) {
		}
		close(stopped)
	}()

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("receive did not stop on cancellation")
	}
}
