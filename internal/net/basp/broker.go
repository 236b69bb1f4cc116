package basp

import (
	"context"
	"sync"
)

// State is one of the four states in spec §4.8's per-peer state machine
// table.
type State int

const (
	// StateHandshakePending is the initial state for a new outbound
	// connection, waiting for the peer's server handshake.
	StateHandshakePending State = iota

	// StateAwaitHeader is waiting for the next HeaderSize-byte header, either as
	// the initial state of an inbound connection or after a payload has
	// just been dispatched.
	StateAwaitHeader

	// StateAwaitPayload is waiting for exactly the number of payload
	// bytes declared by the most recently read header.
	StateAwaitPayload

	// StateClosed is terminal: a connection error or peer goodbye has
	// occurred and the middleman has been notified.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateHandshakePending:
		return "handshake_pending"
	case StateAwaitHeader:
		return "await_header"
	case StateAwaitPayload:
		return "await_payload"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Frame is one fully decoded BASP header plus its payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// Validator decides whether a peer's handshake is acceptable given this
// broker's own advertised handshake.
type Validator func(local, peer HandshakeInfo) error

// Broker drives one peer connection's BASP state machine (spec §4.8). It is
// a pure state machine: it has no knowledge of sockets. Callers feed it
// bytes as they arrive from the wire via Feed, and write back any bytes
// Feed says to send (e.g. the client handshake reply) themselves — this
// keeps the protocol logic unit-testable without a real TCP connection and
// lets the reactor (internal/net/mux) own all actual I/O.
type Broker struct {
	mu sync.Mutex

	state State
	buf   []byte

	pendingHeader Header

	outbound      bool
	handshakeDone bool
	local         HandshakeInfo
	Peer          HandshakeInfo
	validate      Validator
}

// NewInboundBroker returns a Broker for a connection this process accepted.
// It starts in StateAwaitHeader, expecting the peer's client handshake
// frame to already be in flight once we've sent our own server handshake
// (callers are responsible for writing EncodeHandshakePayload(local) as an
// OpServerHandshake frame before the first Feed call).
func NewInboundBroker(local HandshakeInfo, validate Validator) *Broker {
	return &Broker{
		state:    StateAwaitHeader,
		local:    local,
		validate: validate,
	}
}

// NewOutboundBroker returns a Broker for a connection this process
// initiated. It starts in StateHandshakePending, awaiting the peer's server
// handshake.
func NewOutboundBroker(local HandshakeInfo, validate Validator) *Broker {
	return &Broker{
		state:    StateHandshakePending,
		local:    local,
		outbound: true,
		validate: validate,
	}
}

// State returns the broker's current state.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Feed appends newly read bytes and advances the state machine as far as
// the buffered data allows. It returns any fully decoded frames plus any
// bytes the caller must write back to the peer (the client handshake reply,
// for an outbound connection's first message). An error return means the
// connection must be closed; Feed transitions to StateClosed before
// returning one.
func (b *Broker) Feed(data []byte) (frames []Frame, toSend []byte, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return nil, nil, NewError(CodeSocketDisconnected, "broker is closed")
	}

	b.buf = append(b.buf, data...)

	for {
		switch b.state {
		case StateHandshakePending:
			if len(b.buf) < HeaderSize {
				return frames, toSend, nil
			}
			hdr, decErr := DecodeHeader(b.buf[:HeaderSize])
			if decErr != nil {
				b.state = StateClosed
				return frames, toSend, decErr
			}
			if hdr.Operation != OpServerHandshake {
				b.state = StateClosed
				return frames, toSend, NewError(CodeUnexpectedMessage,
					"expected server handshake")
			}
			if uint32(len(b.buf)) < HeaderSize+hdr.PayloadLen {
				return frames, toSend, nil
			}

			payload := b.buf[HeaderSize : HeaderSize+hdr.PayloadLen]
			b.buf = b.buf[HeaderSize+hdr.PayloadLen:]

			peer, decErr := DecodeHandshakePayload(payload)
			if decErr != nil {
				b.state = StateClosed
				return frames, toSend, decErr
			}
			if verr := b.validate(b.local, peer); verr != nil {
				b.state = StateClosed
				log.WarnS(context.Background(), "rejecting peer handshake", verr,
					"peer_node_id", peer.NodeID.String())
				return frames, toSend, verr
			}
			b.Peer = peer
			b.handshakeDone = true

			reply := Header{
				Operation:  OpClientHandshake,
				PayloadLen: 0,
			}
			encodedPayload := EncodeHandshakePayload(b.local)
			reply.PayloadLen = uint32(len(encodedPayload))
			replyHeader := reply.Encode()
			toSend = append(toSend, replyHeader[:]...)
			toSend = append(toSend, encodedPayload...)

			b.state = StateAwaitHeader

		case StateAwaitHeader:
			if !b.outbound && !b.handshakeDone {
				// Inbound connections expect the client handshake as
				// their first frame in this state.
				if len(b.buf) < HeaderSize {
					return frames, toSend, nil
				}
				hdr, decErr := DecodeHeader(b.buf[:HeaderSize])
				if decErr != nil {
					b.state = StateClosed
					return frames, toSend, decErr
				}
				if hdr.Operation != OpClientHandshake {
					b.state = StateClosed
					return frames, toSend, NewError(CodeUnexpectedMessage,
						"expected client handshake")
				}
				if uint32(len(b.buf)) < HeaderSize+hdr.PayloadLen {
					return frames, toSend, nil
				}
				payload := b.buf[HeaderSize : HeaderSize+hdr.PayloadLen]
				b.buf = b.buf[HeaderSize+hdr.PayloadLen:]

				peer, decErr := DecodeHandshakePayload(payload)
				if decErr != nil {
					b.state = StateClosed
					return frames, toSend, decErr
				}
				if verr := b.validate(b.local, peer); verr != nil {
					b.state = StateClosed
					log.WarnS(context.Background(), "rejecting peer handshake", verr,
						"peer_node_id", peer.NodeID.String())
					return frames, toSend, verr
				}
				b.Peer = peer
				b.handshakeDone = true
				continue
			}

			if len(b.buf) < HeaderSize {
				return frames, toSend, nil
			}
			hdr, decErr := DecodeHeader(b.buf[:HeaderSize])
			if decErr != nil {
				b.state = StateClosed
				return frames, toSend, decErr
			}
			b.buf = b.buf[HeaderSize:]
			b.pendingHeader = hdr

			if hdr.PayloadLen == 0 {
				frames = append(frames, Frame{Header: hdr})
				continue
			}
			b.state = StateAwaitPayload

		case StateAwaitPayload:
			if uint32(len(b.buf)) < b.pendingHeader.PayloadLen {
				return frames, toSend, nil
			}
			payload := make([]byte, b.pendingHeader.PayloadLen)
			copy(payload, b.buf[:b.pendingHeader.PayloadLen])
			b.buf = b.buf[b.pendingHeader.PayloadLen:]

			frames = append(frames, Frame{
				Header:  b.pendingHeader,
				Payload: payload,
			})
			b.state = StateAwaitHeader

		case StateClosed:
			return frames, toSend, nil
		}
	}
}

// InitialHandshake returns the bytes an inbound (accepted) connection must
// write before its first Feed call: the server handshake frame advertising
// local's identity. An outbound connection writes nothing first; its client
// handshake comes back from Feed once the server handshake has arrived.
func (b *Broker) InitialHandshake() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload := EncodeHandshakePayload(b.local)
	hdr := Header{Operation: OpServerHandshake, PayloadLen: uint32(len(payload))}
	encoded := hdr.Encode()

	out := make([]byte, 0, len(encoded)+len(payload))
	out = append(out, encoded[:]...)
	out = append(out, payload...)
	return out
}

// Close transitions the broker to StateClosed. It is idempotent.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		log.DebugS(context.Background(), "closing broker", "peer_node_id", b.Peer.NodeID.String())
	}
	b.state = StateClosed
}
