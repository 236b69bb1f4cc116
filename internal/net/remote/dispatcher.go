// Package remote bridges the distribution layer (internal/net/middleman)
// to the local actor runtime (internal/baselib/actor): it implements
// middleman.Dispatcher by decoding an inbound BASP direct-message body
// into a payload.Tuple and telling whatever local actor is registered
// under the frame's destination actor-id.
package remote

import (
	"context"
	"sync"

	"github.com/basprt/actorframe/internal/baselib/actor"
	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/baselib/payload"
	"github.com/basprt/actorframe/internal/baselib/registry"
)

// Envelope is the actor.Message wrapper a decoded remote payload arrives in.
// Local actors that want to handle remote traffic register a TellOnlyRef
// keyed by actor-id and receive Envelope values instead of their own
// message type directly.
type Envelope struct {
	actor.BaseMessage

	// From identifies the peer and remote actor that sent this message.
	From address.Address

	// Payload is the decoded direct-message body: spec §6's
	// "(type-id-list, values...)" framing, already resolved through the
	// registry's per-type Decode hooks.
	Payload *payload.Tuple
}

// MessageType implements actor.Message.
func (Envelope) MessageType() string { return "remote.Envelope" }

// Dispatcher implements middleman.Dispatcher by decoding frames through reg
// and delivering them to whichever local actor is registered under the
// frame's destination actor-id.
type Dispatcher struct {
	reg *registry.Registry

	mu      sync.RWMutex
	targets map[address.ActorID]actor.TellOnlyRef[actor.Message]
}

// New constructs a Dispatcher that decodes payloads through reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		reg:     reg,
		targets: make(map[address.ActorID]actor.TellOnlyRef[actor.Message]),
	}
}

// Register makes ref the delivery target for actorID. A second Register
// call for the same id replaces the previous target.
func (d *Dispatcher) Register(actorID address.ActorID, ref actor.TellOnlyRef[actor.Message]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[actorID] = ref
}

// Unregister removes whatever target was registered for actorID, if any.
func (d *Dispatcher) Unregister(actorID address.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, actorID)
}

// DeliverRemote implements middleman.Dispatcher. It parses payloadBytes as a
// payload.Tuple (spec §6's inline type-id-list framing, so operationData
// carries no dispatch information for this operation) and tells the target
// actor registered for destActor. A decode failure or an unregistered
// target is logged and dropped: BASP has no reply channel for a
// dispatch-time error.
func (d *Dispatcher) DeliverRemote(from address.Address, destActor address.ActorID, operationData uint64, payloadBytes []byte) {
	tuple, err := payload.Deserialize(d.reg, payloadBytes)
	if err != nil {
		log.WarnS(context.Background(), "dropping remote message, payload decode failed", err,
			"dest_actor", destActor)
		return
	}

	d.mu.RLock()
	ref, ok := d.targets[destActor]
	d.mu.RUnlock()
	if !ok {
		log.DebugS(context.Background(), "dropping remote message, no local target registered",
			"dest_actor", destActor)
		return
	}

	ref.Tell(context.Background(), Envelope{From: from, Payload: tuple})
}
