package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/basprt/actorframe/internal/baselib/address"
)

type testMsg struct {
	BaseMessage
	kind string
	data string
}

func (m testMsg) MessageType() string { return m.kind }

// newTestMsg returns a *testMsg carrying data, for tests whose actors take
// *testMsg.
func newTestMsg(data string) *testMsg {
	return &testMsg{kind: "testMsg", data: data}
}

type recordingBehavior struct {
	name     string
	received chan string
}

func (b *recordingBehavior) Receive(_ context.Context, msg testMsg) fn.Result[string] {
	b.received <- b.name + ":" + msg.kind
	return fn.Ok(b.name)
}

func TestScheduledBehaviorBecomeUnbecome(t *testing.T) {
	received := make(chan string, 4)
	base := &recordingBehavior{name: "base", received: received}
	other := &recordingBehavior{name: "other", received: received}

	sb := NewScheduledBehavior[testMsg, string](base)
	require.Equal(t, 1, sb.Depth())

	sb.Receive(context.Background(), testMsg{kind: "ping"})
	require.Equal(t, "base:ping", <-received)

	sb.Become(other)
	require.Equal(t, 2, sb.Depth())

	sb.Receive(context.Background(), testMsg{kind: "ping"})
	require.Equal(t, "other:ping", <-received)

	require.NoError(t, sb.Unbecome())
	require.Equal(t, 1, sb.Depth())

	sb.Receive(context.Background(), testMsg{kind: "ping"})
	require.Equal(t, "base:ping", <-received)

	require.ErrorIs(t, sb.Unbecome(), ErrEmptyBehaviorStack)
}

type selfRefStub struct {
	tells chan testMsg
}

func (s *selfRefStub) ID() string { return "self" }
func (s *selfRefStub) Tell(_ context.Context, msg testMsg) {
	s.tells <- msg
}

func TestScheduledBehaviorReceiveTimeout(t *testing.T) {
	received := make(chan string, 4)
	base := &recordingBehavior{name: "base", received: received}
	sb := NewScheduledBehavior[testMsg, string](base)

	self := &selfRefStub{tells: make(chan testMsg, 4)}
	sb.SetSelf(self)
	sb.SetReceiveTimeout(20*time.Millisecond, testMsg{kind: "timeout"})

	select {
	case msg := <-self.tells:
		require.Equal(t, "timeout", msg.kind)
	case <-time.After(time.Second):
		t.Fatal("receive timeout never fired")
	}
}

func TestScheduledBehaviorCancelReceiveTimeout(t *testing.T) {
	received := make(chan string, 4)
	base := &recordingBehavior{name: "base", received: received}
	sb := NewScheduledBehavior[testMsg, string](base)

	self := &selfRefStub{tells: make(chan testMsg, 4)}
	sb.SetSelf(self)
	sb.SetReceiveTimeout(20*time.Millisecond, testMsg{kind: "timeout"})
	sb.CancelReceiveTimeout()

	select {
	case msg := <-self.tells:
		t.Fatalf("unexpected timeout delivery: %v", msg)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestScheduledBehaviorUntrappedExitTerminates(t *testing.T) {
	t.Parallel()

	base := NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
		t.Fatal("exit message should not reach the behavior stack untrapped")
		return fn.Ok("")
	})
	sb := NewScheduledBehavior[Message, string](base)

	quit := make(chan ExitReasonInfo, 1)
	sb.SetQuit(func(reason ExitReasonInfo) { quit <- reason })

	sb.Receive(context.Background(), ExitMsg{
		From:   address.Address{Actor: 1},
		Reason: ExitReasonInfo{Code: ExitKilled},
	})

	select {
	case reason := <-quit:
		require.Equal(t, ExitKilled, reason.Code)
	case <-time.After(time.Second):
		t.Fatal("quit hook never called")
	}
}

func TestScheduledBehaviorTrappedExitGoesToHandler(t *testing.T) {
	t.Parallel()

	base := NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
		t.Fatal("exit message should go to the exit handler, not ordinary dispatch")
		return fn.Ok("")
	})
	sb := NewScheduledBehavior[Message, string](base)
	sb.SetTrapExit(true)

	handled := make(chan ExitMsg, 1)
	sb.SetExitHandler(func(_ context.Context, msg ExitMsg) { handled <- msg })

	sb.Receive(context.Background(), ExitMsg{
		From:   address.Address{Actor: 1},
		Reason: ExitReasonInfo{Code: ExitNormal},
	})

	select {
	case msg := <-handled:
		require.Equal(t, ExitNormal, msg.Reason.Code)
	case <-time.After(time.Second):
		t.Fatal("exit handler never called")
	}
}

func TestScheduledBehaviorGetInfoRepliesWithAddress(t *testing.T) {
	t.Parallel()

	base := NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
		t.Fatal("get-info probe should not reach the behavior stack")
		return fn.Ok("")
	})
	sb := NewScheduledBehavior[Message, string](base)

	addr := address.Address{Actor: 42}
	sb.SetAddress(addr)
	sb.Become(NewFunctionBehavior(func(_ context.Context, _ Message) fn.Result[string] {
		return fn.Ok("")
	}))

	reply := newRecordingRef("reply")
	sb.Receive(context.Background(), GetInfoMsg{Reply: reply})

	select {
	case msg := <-reply.got:
		info, ok := msg.(InfoMsg)
		require.True(t, ok)
		require.Equal(t, addr, info.Address)
		require.Equal(t, 2, info.BehaviorDepth)
	case <-time.After(time.Second):
		t.Fatal("get-info reply never sent")
	}
}

func TestScheduledBehaviorStashAndUnstash(t *testing.T) {
	t.Parallel()

	var acceptB atomic.Bool
	behavior := NewFunctionBehavior(func(_ context.Context, msg Message) fn.Result[string] {
		if msg.MessageType() == "b" && !acceptB.Load() {
			return fn.Err[string](ErrUnhandledMessage)
		}
		return fn.Ok("handled:" + msg.MessageType())
	})

	sb := NewScheduledBehavior[Message, string](behavior)

	// "a" is handled immediately.
	result := sb.Receive(context.Background(), namedMsg{name: "a"})
	_, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, 0, sb.StashLen())

	stashResult := sb.Receive(context.Background(), namedMsg{name: "b"})
	_, err = stashResult.Unpack()
	require.ErrorIs(t, err, ErrUnhandledMessage)
	require.Equal(t, 1, sb.StashLen())

	acceptB.Store(true)
	sb.Unstash(context.Background())
	require.Equal(t, 0, sb.StashLen())
}

// namedMsg is a plain Message used to exercise stash/unstash with a
// MessageType the test behavior switches on.
type namedMsg struct {
	BaseMessage
	name string
}

func (m namedMsg) MessageType() string { return m.name }

func TestDisposableIdempotent(t *testing.T) {
	count := 0
	d := NewDisposable(func() { count++ })
	require.False(t, d.IsDisposed())

	d.Dispose()
	d.Dispose()
	d.Dispose()

	require.True(t, d.IsDisposed())
	require.Equal(t, 1, count)
}
