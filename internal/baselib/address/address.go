// Package address implements the actor address described in spec §3: an
// immutable (node-id, process-id, actor-id) triple that never resolves to
// more than one actor over its lifetime. Equality and ordering are
// lexicographic over the triple.
package address

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// NodeID is a fixed-width opaque identifier for a host running an actor
// runtime. It is generated once per process via NewNodeID and never changes
// for the lifetime of the process.
type NodeID [16]byte

// NewNodeID generates a fresh, random NodeID using a UUIDv4, matching the
// teacher's use of github.com/google/uuid for identifier generation.
func NewNodeID() NodeID {
	var id NodeID
	copy(id[:], uuid.New().Bytes())
	return id
}

// String renders the node-id in canonical UUID form.
func (n NodeID) String() string {
	return uuid.UUID(n).String()
}

// Compare returns -1, 0 or 1 per the usual ordering contract, used for the
// lexicographic ordering spec §3 requires of addresses.
func (n NodeID) Compare(other NodeID) int {
	for i := range n {
		if n[i] != other[i] {
			if n[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ProcessID distinguishes multiple runtime instances hosted on one node.
type ProcessID uint32

// ActorID is monotonically assigned per process. ActorID zero is reserved
// and never assigned to a real actor; it is used as the "no sender" /
// "anonymous" sentinel in mailbox elements sent outside of actor context.
type ActorID uint64

// IDCounter hands out monotonically increasing ActorIDs for a single
// process. Every ActorSystem embeds one.
type IDCounter struct {
	next atomic.Uint64
}

// Next returns the next ActorID for this process. IDs start at 1 so the
// zero value remains a valid "no actor" sentinel.
func (c *IDCounter) Next() ActorID {
	return ActorID(c.next.Add(1))
}

// NewIDCounter constructs a fresh per-process actor-id counter.
func NewIDCounter() *IDCounter { return &IDCounter{} }

// Address is the immutable, comparable identity of an actor. Two addresses
// are equal iff all three components are equal; Go's built-in struct
// equality gives us this for free since every field is itself comparable.
type Address struct {
	Node    NodeID
	Process ProcessID
	Actor   ActorID
}

// New constructs an Address. Addresses are value types and require no
// explicit constructor invariants beyond field assignment, but this
// constructor exists to keep call sites self-documenting.
func New(node NodeID, process ProcessID, actor ActorID) Address {
	return Address{Node: node, Process: process, Actor: actor}
}

// Local reports whether this address identifies an actor hosted in the
// given local (node, process) pair, i.e. whether a send to it can be
// delivered directly to a mailbox rather than proxied over BASP.
func (a Address) Local(node NodeID, process ProcessID) bool {
	return a.Node == node && a.Process == process
}

// Compare implements the lexicographic ordering spec §3 mandates:
// node-id, then process-id, then actor-id.
func (a Address) Compare(other Address) int {
	if c := a.Node.Compare(other.Node); c != 0 {
		return c
	}
	if a.Process != other.Process {
		if a.Process < other.Process {
			return -1
		}
		return 1
	}
	if a.Actor != other.Actor {
		if a.Actor < other.Actor {
			return -1
		}
		return 1
	}
	return 0
}

// String renders the address as "node/process/actor" for logs and errors.
func (a Address) String() string {
	return fmt.Sprintf("%s/%d/%d", a.Node, a.Process, a.Actor)
}

// IsZero reports whether this is the zero-value address, used as the "no
// sender" sentinel for messages injected outside of actor context (e.g. a
// system probe).
func (a Address) IsZero() bool {
	return a.Actor == 0 && a.Process == 0 && a.Node == NodeID{}
}
