package actor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/baselib/atom"
)

// ExitReasonNotExited is the sentinel "not-exited" code, per spec §3: an ACB's exit
// reason starts here and is set exactly once, to one of the named codes
// below or an application-supplied one.
const ExitReasonNotExited = ""

// Standard exit reason codes. Application code may also set an arbitrary
// non-empty Code via Quit; these three are the ones the link/monitor and
// categorize machinery itself recognizes.
var (
	// ExitNormal is the default reason when an actor's process loop exits
	// without an explicit Quit call.
	ExitNormal = atom.MustNew("normal")

	// ExitKilled marks an unconditional termination: a scheduled actor's
	// categorize step (spec §4.5 step 2) terminates immediately on an
	// ExitMsg carrying this code, bypassing the exit handler.
	ExitKilled = atom.Kill

	// ExitError marks termination caused by an error in the actor's
	// behavior. The runtime never assigns it itself: application code
	// passes it to Quit, and a panic inside a behavior is not recovered.
	ExitError = atom.MustNew("error")
)

// ExitReasonInfo is the ACB's exit reason: a code plus, for error-driven
// exits, the underlying error. The zero value means "not exited" (Code ==
// ExitReasonNotExited).
type ExitReasonInfo struct {
	Code atom.Atom
	Err  error
}

// IsSet reports whether this exit reason has actually been assigned (as
// opposed to being the zero-value "not exited" sentinel).
func (r ExitReasonInfo) IsSet() bool { return r.Code != ExitReasonNotExited }

// Attachable is a callback invoked exactly once, with the actor's final exit
// reason, when its control block transitions to exited. Spec §3: "notify
// attachables" is one of the fixed steps of actor cleanup.
type Attachable func(reason ExitReasonInfo)

// ControlBlock is the Actor Control Block from spec §3: a heap-allocated
// object pinned for the lifetime of any reference (strong or weak) to an
// actor. It tracks a strong count (≥1 means the actor body is still alive),
// a weak count (≥1 means the block itself is still pinned even after the
// body is gone), an exit reason set exactly once, a set of linked peers, a
// set of monitors, and a list of attachables run at exit.
//
// Go's garbage collector frees the struct itself once nothing references
// it; the strong/weak counts here model the *actor lifecycle* invariant
// spec §8 calls "ref-count soundness" (strong=0 ⇒ body destroyed, weak=0 ⇒
// block freed, transitions monotonic), not memory reclamation.
type ControlBlock struct {
	addr address.Address

	strong atomic.Int64
	weak   atomic.Int64

	mu          sync.Mutex
	reason      ExitReasonInfo
	links       map[address.Address]TellOnlyRef[Message]
	monitors    map[address.Address]TellOnlyRef[Message]
	attachables []Attachable
}

// NewControlBlock creates a control block for the actor at addr with an
// initial strong count and weak count of 1, per spec §3's "strong = 1 means
// the actor is alive/owned" convention.
func NewControlBlock(addr address.Address) *ControlBlock {
	cb := &ControlBlock{
		addr:     addr,
		links:    make(map[address.Address]TellOnlyRef[Message]),
		monitors: make(map[address.Address]TellOnlyRef[Message]),
	}
	cb.strong.Store(1)
	cb.weak.Store(1)
	return cb
}

// Address returns the address this control block was created for.
func (cb *ControlBlock) Address() address.Address {
	return cb.addr
}

// Retain increments the strong reference count.
func (cb *ControlBlock) Retain() {
	cb.strong.Add(1)
}

// Release decrements the strong reference count and reports whether it
// reached zero. It does not itself set an exit reason — the actor's process
// loop does that via SetExitReason once its mailbox has actually drained —
// but it is the hook link/ref-holding code uses to detect "last strong ref
// gone" for the ref-count soundness invariant.
func (cb *ControlBlock) Release() bool {
	return cb.strong.Add(-1) == 0
}

// WeakRetain increments the weak reference count.
func (cb *ControlBlock) WeakRetain() {
	cb.weak.Add(1)
}

// WeakRelease decrements the weak reference count and reports whether it
// reached zero, at which point nothing should observe this block again.
func (cb *ControlBlock) WeakRelease() bool {
	return cb.weak.Add(-1) == 0
}

// StrongCount returns the current strong reference count.
func (cb *ControlBlock) StrongCount() int64 { return cb.strong.Load() }

// WeakCount returns the current weak reference count.
func (cb *ControlBlock) WeakCount() int64 { return cb.weak.Load() }

// ExitReason returns the exit reason and whether it has been set yet.
func (cb *ControlBlock) ExitReason() (ExitReasonInfo, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.reason, cb.reason.IsSet()
}

// Link registers a symmetric link to peer: when either side's control block
// exits, the other receives an ExitMsg, per spec §3/§9's cyclic-ownership
// link discipline. The caller is responsible for calling Link on both
// control blocks (ActorSystem.Link does this).
func (cb *ControlBlock) Link(peer address.Address, ref TellOnlyRef[Message]) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.links[peer] = ref
}

// Unlink removes a previously established link.
func (cb *ControlBlock) Unlink(peer address.Address) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.links, peer)
}

// AddMonitor registers watcher to receive a DownMsg when this control block
// exits, per spec §3/§7's monitor discipline.
func (cb *ControlBlock) AddMonitor(watcher address.Address, ref TellOnlyRef[Message]) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.monitors[watcher] = ref
}

// RemoveMonitor removes a previously registered monitor.
func (cb *ControlBlock) RemoveMonitor(watcher address.Address) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.monitors, watcher)
}

// Attach registers a callback to run once, at exit, with the final exit
// reason. If the control block has already exited, fn runs immediately.
func (cb *ControlBlock) Attach(fn Attachable) {
	cb.mu.Lock()
	if cb.reason.IsSet() {
		reason := cb.reason
		cb.mu.Unlock()
		fn(reason)
		return
	}
	cb.attachables = append(cb.attachables, fn)
	cb.mu.Unlock()
}

// SetExitReason sets the control block's exit reason exactly once — a
// second call is a no-op and returns false — then notifies every linked
// peer (ExitMsg), every monitor (DownMsg), and every attachable, per spec
// §3's termination cleanup ("notify attachables, send exit signals down
// links") and §7's "monitored observers get a down_msg ... linked peers get
// an exit_msg" user-visible contract.
func (cb *ControlBlock) SetExitReason(reason ExitReasonInfo) bool {
	cb.mu.Lock()
	if cb.reason.IsSet() {
		cb.mu.Unlock()
		return false
	}
	cb.reason = reason

	links := make(map[address.Address]TellOnlyRef[Message], len(cb.links))
	for k, v := range cb.links {
		links[k] = v
	}
	monitors := make(map[address.Address]TellOnlyRef[Message], len(cb.monitors))
	for k, v := range cb.monitors {
		monitors[k] = v
	}
	attachables := cb.attachables
	cb.attachables = nil
	cb.mu.Unlock()

	ctx := context.Background()
	for _, ref := range links {
		ref.Tell(ctx, ExitMsg{From: cb.addr, Reason: reason})
	}
	for _, ref := range monitors {
		ref.Tell(ctx, DownMsg{From: cb.addr, Reason: reason})
	}
	for _, fn := range attachables {
		fn(reason)
	}

	return true
}
