package actor

import (
	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/baselib/atom"
)

// ExitMsg is delivered to every linked peer when a control block's exit
// reason is set, per spec §3/§7: "linked peers get an exit_msg."
type ExitMsg struct {
	BaseMessage

	// From is the address of the actor that exited.
	From address.Address

	// Reason is the exited actor's final exit reason.
	Reason ExitReasonInfo
}

// MessageType implements Message.
func (ExitMsg) MessageType() string { return atom.Exit.String() }

// Kind implements Categorizable.
func (ExitMsg) Kind() MessageKind { return KindExit }

// DownMsg is delivered to every monitor when a control block's exit reason
// is set, per spec §3/§7: "monitored observers get a down_msg."
type DownMsg struct {
	BaseMessage

	// From is the address of the actor that exited.
	From address.Address

	// Reason is the exited actor's final exit reason.
	Reason ExitReasonInfo
}

// MessageType implements Message.
func (DownMsg) MessageType() string { return atom.Down.String() }

// Kind implements Categorizable.
func (DownMsg) Kind() MessageKind { return KindDown }

// NodeDownMsg is delivered to every local actor monitoring a remote address
// when the BASP connection to that address's node drops, per spec §7/§9 —
// a monitor survives node disconnects as a synthetic down signal covering
// every actor the monitor can no longer reach on that node.
type NodeDownMsg struct {
	BaseMessage

	// Node is the node that disconnected.
	Node address.NodeID

	// Reason describes why the node connection was considered down.
	Reason ExitReasonInfo
}

// MessageType implements Message.
func (NodeDownMsg) MessageType() string { return "NodeDown" }

// Kind implements Categorizable.
func (NodeDownMsg) Kind() MessageKind { return KindNodeDown }

// ErrorMsg reports an error recovered elsewhere in the system — for
// example a supervised child's panic forwarded to its supervisor — as a
// categorize-step message distinct from an ordinary application reply.
type ErrorMsg struct {
	BaseMessage

	// From is the address of the actor reporting the error, if known.
	From address.Address

	// Err is the underlying error.
	Err error
}

// MessageType implements Message.
func (ErrorMsg) MessageType() string { return "Error" }

// Kind implements Categorizable.
func (ErrorMsg) Kind() MessageKind { return KindError }

// ActionMsg is a scheduler-internal action, such as a receive-timeout or
// user timer firing, routed through the categorize step rather than the
// behavior stack's ordinary message handlers.
type ActionMsg struct {
	BaseMessage

	// Name identifies the action for logging/debugging.
	Name string
}

// MessageType implements Message.
func (ActionMsg) MessageType() string { return "Action" }

// Kind implements Categorizable.
func (ActionMsg) Kind() MessageKind { return KindAction }

// GetInfoMsg is spec §4.5's "sys_atom get info" probe: a request for an
// actor's address and current behavior depth, answered with an InfoMsg
// delivered back to Reply.
type GetInfoMsg struct {
	BaseMessage

	// Reply is where the InfoMsg response should be sent.
	Reply TellOnlyRef[Message]
}

// MessageType implements Message.
func (GetInfoMsg) MessageType() string { return atom.GetInfo.String() }

// Kind implements Categorizable.
func (GetInfoMsg) Kind() MessageKind { return KindGetInfo }

// InfoMsg is the response to a GetInfoMsg probe.
type InfoMsg struct {
	BaseMessage

	// Address is the responding actor's address.
	Address address.Address

	// BehaviorDepth is the responding actor's current become/unbecome
	// stack depth (spec §4.5's behavior stack).
	BehaviorDepth int
}

// MessageType implements Message.
func (InfoMsg) MessageType() string { return "Info" }

// Kind implements Categorizable.
func (InfoMsg) Kind() MessageKind { return KindOrdinary }
