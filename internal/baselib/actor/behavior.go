package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/basprt/actorframe/internal/baselib/address"
)

// timeoutConfig holds the receive-timeout message alongside an explicit
// "is configured" flag, since the zero value of M is not distinguishable
// from a legitimately-zero message value.
type timeoutConfig[M Message] struct {
	message M
	armed   bool
}

// functionBehavior adapts a plain function into an ActorBehavior, for
// actors whose logic doesn't need become/unbecome or any other state a
// dedicated type would otherwise carry.
type functionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps fn as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](fn func(ctx context.Context, msg M) fn.Result[R]) ActorBehavior[M, R] {
	return &functionBehavior[M, R]{fn: fn}
}

// Receive implements ActorBehavior.
func (f *functionBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	return f.fn(ctx, msg)
}

// ErrEmptyBehaviorStack is returned by Unbecome when called with nothing
// left to pop back to.
var ErrEmptyBehaviorStack = fmt.Errorf("actor: behavior stack is empty")

// ErrUnhandledMessage is the sentinel a behavior's Receive returns (wrapped
// in its fn.Result[R]) to signal spec §4.5 step 5's default_handler
// discipline: "no case in the current behavior matches this message; stash
// it for a future Unstash call" rather than treating it as a real error.
//
// Because ActorBehavior.Receive only sees the message value, not its
// envelope, a message that arrives via Ask and hits this path has its
// promise completed immediately with ErrUnhandledMessage — there's no
// mechanism to defer completion until a later Unstash call picks the
// message back up. Reliable stash/unstash is therefore only meaningful for
// Tell-sourced traffic, matching every stash example in spec §8.
var ErrUnhandledMessage = fmt.Errorf("actor: message unhandled by current behavior")

// ScheduledBehavior adapts spec §4.5's scheduled-actor extensions (a
// become/unbecome behavior stack plus a receive-timeout bound to the top of
// the stack) onto the plain ActorBehavior strategy interface the teacher's
// Actor already drives. An Actor[M,R] configured with a ScheduledBehavior
// sees it as a single ActorBehavior; internally, Receive always dispatches
// to whichever behavior is on top of the stack.
type ScheduledBehavior[M Message, R any] struct {
	mu sync.Mutex

	stack []ActorBehavior[M, R]

	self    TellOnlyRef[M]
	address address.Address

	timeoutDuration time.Duration
	timeoutMessage  timeoutConfig[M]
	timeoutTimer    Disposable

	// stash holds ordinary messages the current top-of-stack behavior
	// returned ErrUnhandledMessage for, per spec §4.5 step 5, in arrival
	// order, for a future Unstash call to replay.
	stash *deque.Deque[M]

	// trapExit controls how an ExitMsg delivered via a link is handled,
	// mirroring spec §3's "trap_exit" process flag. When false (the
	// default), the categorize step terminates the actor immediately
	// with the exit's reason rather than handing it to the behavior
	// stack. When true, the ExitMsg is routed like any other categorized
	// message (to onExit if set, otherwise ordinary dispatch), except that
	// an ExitMsg carrying ExitKilled still terminates the actor.
	trapExit bool

	// quit is invoked to terminate the actor when an untrapped ExitMsg
	// arrives. Wired by the owning Actor via SetQuit.
	quit func(reason ExitReasonInfo)

	onExit     func(ctx context.Context, msg ExitMsg)
	onDown     func(ctx context.Context, msg DownMsg)
	onNodeDown func(ctx context.Context, msg NodeDownMsg)
}

// NewScheduledBehavior returns a ScheduledBehavior whose initial (bottom of
// stack) behavior is initial. The stack can never be popped below this
// behavior; Unbecome is a no-op once only initial remains.
func NewScheduledBehavior[M Message, R any](initial ActorBehavior[M, R]) *ScheduledBehavior[M, R] {
	return &ScheduledBehavior[M, R]{
		stack:        []ActorBehavior[M, R]{initial},
		timeoutTimer: NoopDisposable(),
		stash:        deque.New[M](),
	}
}

// SetAddress records this actor's address, used to answer a GetInfoMsg
// probe (spec §4.5's "sys_atom get info").
func (s *ScheduledBehavior[M, R]) SetAddress(addr address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = addr
}

// SetQuit wires the hook the categorize step calls to terminate the actor
// when an untrapped ExitMsg arrives. The owning Actor wires this to its own
// Quit method immediately after construction.
func (s *ScheduledBehavior[M, R]) SetQuit(quit func(reason ExitReasonInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quit = quit
}

// SetTrapExit configures whether this actor traps exits (spec §3's
// trap_exit flag). See the trapExit field doc for the behavioral
// difference.
func (s *ScheduledBehavior[M, R]) SetTrapExit(trap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trapExit = trap
}

// SetExitHandler registers a callback invoked for a trapped ExitMsg. Only
// meaningful when M == Message (see ErrUnhandledMessage's doc comment on
// categorize's reach); a no-op setter on a narrowly-typed M is harmless
// since such an actor can never actually receive an ExitMsg.
func (s *ScheduledBehavior[M, R]) SetExitHandler(fn func(ctx context.Context, msg ExitMsg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// SetDownHandler registers a callback invoked for a DownMsg.
func (s *ScheduledBehavior[M, R]) SetDownHandler(fn func(ctx context.Context, msg DownMsg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDown = fn
}

// SetNodeDownHandler registers a callback invoked for a NodeDownMsg.
func (s *ScheduledBehavior[M, R]) SetNodeDownHandler(fn func(ctx context.Context, msg NodeDownMsg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNodeDown = fn
}

// StashLen returns the number of messages currently held back awaiting a
// future Unstash call.
func (s *ScheduledBehavior[M, R]) StashLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stash.Len()
}

// SetSelf binds the actor's own reference so the receive-timeout machinery
// can deliver a synthetic timeout message back to the actor's mailbox.
// Callers set this once, immediately after NewActor returns the actor's Ref.
func (s *ScheduledBehavior[M, R]) SetSelf(self TellOnlyRef[M]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = self
}

// SetReceiveTimeout configures the idle duration after which timeoutMsg is
// delivered to the actor if no other message arrives first, matching spec
// §4.5's per-behavior receive-timeout. Passing a zero duration disables the
// timeout. The timeout is rearmed every time Receive is called and is bound
// to whichever behavior is on top of the stack at arm time; popping or
// pushing a behavior cancels the pending timer until the new top rearms one
// of its own (callers typically call SetReceiveTimeout again from Become's
// targeted behavior).
func (s *ScheduledBehavior[M, R]) SetReceiveTimeout(d time.Duration, timeoutMsg M) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeoutDuration = d
	s.timeoutMessage = timeoutConfig[M]{message: timeoutMsg, armed: true}
	s.rearmLocked()
}

// CancelReceiveTimeout disarms any pending receive-timeout.
func (s *ScheduledBehavior[M, R]) CancelReceiveTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeoutDuration = 0
	s.timeoutMessage = timeoutConfig[M]{}
	s.timeoutTimer.Dispose()
	s.timeoutTimer = NoopDisposable()
}

// rearmLocked cancels any outstanding timer and, if a positive duration and
// timeout message are configured, schedules a new one. Callers must hold
// s.mu.
func (s *ScheduledBehavior[M, R]) rearmLocked() {
	s.timeoutTimer.Dispose()
	s.timeoutTimer = NoopDisposable()

	if s.timeoutDuration <= 0 || s.self == nil || !s.timeoutMessage.armed {
		return
	}

	self := s.self
	msg := s.timeoutMessage.message
	timer := time.AfterFunc(s.timeoutDuration, func() {
		self.Tell(context.Background(), msg)
	})
	s.timeoutTimer = NewDisposable(func() { timer.Stop() })
}

// Become pushes b onto the top of the behavior stack. Subsequent messages
// are dispatched to b until a matching Unbecome pops it back off, per spec
// §4.5's become/unbecome semantics.
func (s *ScheduledBehavior[M, R]) Become(b ActorBehavior[M, R]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, b)
	s.timeoutTimer.Dispose()
	s.timeoutTimer = NoopDisposable()
}

// Unbecome pops the top behavior off the stack, reverting to whatever was
// active before the matching Become. It returns ErrEmptyBehaviorStack if
// only the original (bottom) behavior remains.
func (s *ScheduledBehavior[M, R]) Unbecome() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) <= 1 {
		return ErrEmptyBehaviorStack
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.timeoutTimer.Dispose()
	s.timeoutTimer = NoopDisposable()
	return nil
}

// Depth returns the current behavior stack depth (1 means only the initial
// behavior is active).
func (s *ScheduledBehavior[M, R]) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Receive implements ActorBehavior. It first runs spec §4.5 step 2's
// categorize step: a message implementing Categorizable is classified and,
// for the system kinds (exit/down/node-down), routed to its dedicated
// handler instead of the behavior stack when one is configured. Anything
// left over — KindOrdinary, or a categorized kind with no handler set —
// goes to whichever behavior is on top of the stack; if that behavior
// reports ErrUnhandledMessage, the message is stashed per step 5's
// default_handler discipline instead of being treated as a failure. Every
// path ends by rearming the receive-timeout, since a message has just been
// processed.
func (s *ScheduledBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	defer func() {
		s.mu.Lock()
		s.rearmLocked()
		s.mu.Unlock()
	}()

	if kind, ok := categorize(msg); ok {
		if result, handled := s.dispatchSystemKind(ctx, kind, msg); handled {
			return result
		}
	}

	return s.dispatchOrdinary(ctx, msg)
}

// categorize classifies msg via Categorizable, reporting false if msg
// doesn't implement it (i.e. is unconditionally KindOrdinary).
func categorize[M Message](msg M) (MessageKind, bool) {
	c, ok := any(msg).(Categorizable)
	if !ok {
		return KindOrdinary, false
	}
	return c.Kind(), true
}

// dispatchSystemKind handles the categorized system kinds that have a
// dedicated path. It returns handled=false when the kind should fall
// through to ordinary dispatch (KindOrdinary itself, or a system kind with
// no handler configured and no default policy).
func (s *ScheduledBehavior[M, R]) dispatchSystemKind(
	ctx context.Context, kind MessageKind, msg M,
) (fn.Result[R], bool) {
	switch kind {
	case KindExit:
		exitMsg, ok := any(msg).(ExitMsg)
		if !ok {
			return fn.Result[R]{}, false
		}

		s.mu.Lock()
		trap, onExit, quit := s.trapExit, s.onExit, s.quit
		s.mu.Unlock()

		if !trap || exitMsg.Reason.Code == ExitKilled {
			if quit != nil {
				quit(exitMsg.Reason)
			}
			var zero R
			return fn.Ok(zero), true
		}
		if onExit != nil {
			onExit(ctx, exitMsg)
			var zero R
			return fn.Ok(zero), true
		}
		return fn.Result[R]{}, false

	case KindDown:
		downMsg, ok := any(msg).(DownMsg)
		if !ok {
			return fn.Result[R]{}, false
		}
		s.mu.Lock()
		onDown := s.onDown
		s.mu.Unlock()
		if onDown == nil {
			return fn.Result[R]{}, false
		}
		onDown(ctx, downMsg)
		var zero R
		return fn.Ok(zero), true

	case KindNodeDown:
		nodeDownMsg, ok := any(msg).(NodeDownMsg)
		if !ok {
			return fn.Result[R]{}, false
		}
		s.mu.Lock()
		onNodeDown := s.onNodeDown
		s.mu.Unlock()
		if onNodeDown == nil {
			return fn.Result[R]{}, false
		}
		onNodeDown(ctx, nodeDownMsg)
		var zero R
		return fn.Ok(zero), true

	case KindGetInfo:
		getInfo, ok := any(msg).(GetInfoMsg)
		if !ok {
			return fn.Result[R]{}, false
		}
		s.mu.Lock()
		addr, depth := s.address, len(s.stack)
		s.mu.Unlock()
		if getInfo.Reply != nil {
			getInfo.Reply.Tell(ctx, InfoMsg{
				Address:       addr,
				BehaviorDepth: depth,
			})
		}
		var zero R
		return fn.Ok(zero), true

	default:
		return fn.Result[R]{}, false
	}
}

// dispatchOrdinary sends msg to whichever behavior is on top of the stack.
// If that behavior reports ErrUnhandledMessage, msg is stashed instead of
// being surfaced as a failed result.
func (s *ScheduledBehavior[M, R]) dispatchOrdinary(ctx context.Context, msg M) fn.Result[R] {
	s.mu.Lock()
	top := s.stack[len(s.stack)-1]
	s.mu.Unlock()

	result := top.Receive(ctx, msg)

	if _, err := result.Unpack(); errors.Is(err, ErrUnhandledMessage) {
		s.mu.Lock()
		s.stash.PushBack(msg)
		s.mu.Unlock()
	}

	return result
}

// Unstash replays every message currently held in the stash through Receive,
// in arrival order, exactly once per call — a message that stashes again
// during this pass (still unhandled by whatever behavior is now on top) is
// pushed back to the tail and left for a later Unstash call, the same
// bounded-pass technique BlockingActor.scanStash uses to avoid looping
// forever over a message nothing will ever handle.
func (s *ScheduledBehavior[M, R]) Unstash(ctx context.Context) {
	s.mu.Lock()
	n := s.stash.Len()
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.mu.Lock()
		msg := s.stash.PopFront()
		s.mu.Unlock()

		s.Receive(ctx, msg)
	}
}

// OnStop implements Stoppable by forwarding to the current top-of-stack
// behavior if it implements Stoppable, and disarms any pending timeout.
func (s *ScheduledBehavior[M, R]) OnStop(ctx context.Context) error {
	s.mu.Lock()
	top := s.stack[len(s.stack)-1]
	s.timeoutTimer.Dispose()
	s.mu.Unlock()

	if stoppable, ok := top.(Stoppable); ok {
		return stoppable.OnStop(ctx)
	}
	return nil
}
