package basp

// Operation is the dense 8-bit opcode enum carried in a Header, per spec
// §4.8's payload-interpretation list and §6's "Operation codes are a dense
// 8-bit enum."
type Operation uint8

const (
	// OpServerHandshake advertises (node-id, application-ids,
	// protocol-version) when a connection is accepted.
	OpServerHandshake Operation = iota

	// OpClientHandshake is the client's reply to OpServerHandshake,
	// carrying the same triple.
	OpClientHandshake

	// OpDirectMessage carries a single serialized actor message destined
	// for a specific numeric or named actor on this peer.
	OpDirectMessage

	// OpRoutedMessage carries a message this peer should forward on
	// behalf of the sender, rather than deliver locally.
	OpRoutedMessage

	// OpHeartbeat is emitted when the connection has been idle for
	// `heartbeat-interval` and carries no payload.
	OpHeartbeat

	// OpAnnouncePublishedActor tells the peer that an actor has been
	// published at a given id/name.
	OpAnnouncePublishedActor

	// OpRemovePublishedActor retracts a prior OpAnnouncePublishedActor.
	OpRemovePublishedActor

	// OpKillProxy tells the peer that the proxy it holds for a local
	// actor is no longer valid (the local actor has terminated).
	OpKillProxy

	// opOperationCount marks the end of the valid range; it is never
	// itself a legal wire value.
	opOperationCount
)

// Valid reports whether op is a recognized opcode.
func (op Operation) Valid() bool {
	return op < opOperationCount
}

// String implements fmt.Stringer for debugging/log output.
func (op Operation) String() string {
	switch op {
	case OpServerHandshake:
		return "server_handshake"
	case OpClientHandshake:
		return "client_handshake"
	case OpDirectMessage:
		return "direct_message"
	case OpRoutedMessage:
		return "routed_message"
	case OpHeartbeat:
		return "heartbeat"
	case OpAnnouncePublishedActor:
		return "announce_published_actor"
	case OpRemovePublishedActor:
		return "remove_published_actor"
	case OpKillProxy:
		return "kill_proxy"
	default:
		return "unknown_operation"
	}
}
