package actor

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

func TestBlockingActorStashesNonMatching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailbox := NewChannelMailbox[testMsg, string](ctx, 8)
	ba := NewBlockingActor[testMsg, string](ctx, mailbox)
	defer ba.Close()

	mailbox.TrySend(envelope[testMsg, string]{message: testMsg{kind: "a"}})
	mailbox.TrySend(envelope[testMsg, string]{message: testMsg{kind: "b"}})
	mailbox.TrySend(envelope[testMsg, string]{message: testMsg{kind: "target"}})

	rec, ok := ba.Receive(func(m testMsg) bool { return m.kind == "target" })
	require.True(t, ok)
	require.Equal(t, "target", rec.Message.kind)
	require.Equal(t, 2, ba.StashLen())

	rec, ok = ba.Receive(func(m testMsg) bool { return m.kind == "a" })
	require.True(t, ok)
	require.Equal(t, "a", rec.Message.kind)
	require.Equal(t, 1, ba.StashLen())
}

func TestBlockingActorReplyCompletesPromise(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailbox := NewChannelMailbox[testMsg, string](ctx, 8)
	ba := NewBlockingActor[testMsg, string](ctx, mailbox)
	defer ba.Close()

	promise := NewPromise[string]()
	mailbox.TrySend(envelope[testMsg, string]{
		message:   testMsg{kind: "ask"},
		promise:   promise,
		callerCtx: context.Background(),
	})

	rec, ok := ba.Receive(func(m testMsg) bool { return true })
	require.True(t, ok)
	rec.Reply(fn.Ok("done"))

	result := promise.Future().Await(context.Background())
	val, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, "done", val)
}

func TestBlockingActorReceiveReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mailbox := NewChannelMailbox[testMsg, string](ctx, 8)
	ba := NewBlockingActor[testMsg, string](ctx, mailbox)
	defer ba.Close()

	done := make(chan struct{})
	go func() {
		_, ok := ba.Receive(func(m testMsg) bool { return false })
		require.False(t, ok)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Receive never returned after cancellation")
	}
}
