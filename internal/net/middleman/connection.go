package middleman

import (
	"io"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/net/basp"
	"github.com/basprt/actorframe/internal/net/mux"
	"github.com/basprt/actorframe/internal/net/proxy"
)

// connection is one BASP peer connection: a TCP socket, the broker state
// machine decoding/encoding its frames, and a write queue feeding bytes
// back out once the reactor reports the fd writable. It implements
// mux.Handler so the middleman's reactor can drive it directly.
type connection struct {
	mm   *Middleman
	conn *net.TCPConn
	fd   int

	broker *basp.Broker
	mon    *basp.HeartbeatMonitor

	mu            sync.Mutex
	wbuf          []byte
	closed        bool
	onClose       func(peerNode address.NodeID, hadPeer bool)
	onHandshake   func(peerNode address.NodeID)
	handshakeSent bool
}

func fdOf(c *net.TCPConn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	err = raw.Control(func(v uintptr) { fd = int(v) })
	return fd, err
}

func (c *connection) FD() int { return c.fd }

// HandleReadEvent drains available bytes from the socket, feeds them
// through the broker state machine, and dispatches any decoded frames to
// the middleman's registry-backed message handler (spec §4.8's per-peer
// state machine driving deserialization, §4.9's proxy lifecycle on
// handshake/teardown).
func (c *connection) HandleReadEvent() {
	buf := make([]byte, 64*1024)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.fail(err)
		return
	}
	if n == 0 {
		c.fail(io.EOF)
		return
	}

	frames, toSend, err := c.broker.Feed(buf[:n])
	if err != nil {
		c.fail(err)
		return
	}
	if len(toSend) > 0 {
		c.queueWrite(toSend)
	}
	if c.mon != nil {
		c.mon.Touch()
	}

	c.mu.Lock()
	handshakeJustCompleted := !c.handshakeSent && c.broker.State() == basp.StateAwaitHeader
	if handshakeJustCompleted {
		c.handshakeSent = true
	}
	onHandshake := c.onHandshake
	peerNode := c.broker.Peer.NodeID
	c.mu.Unlock()

	if handshakeJustCompleted && onHandshake != nil {
		onHandshake(peerNode)
	}

	for _, frame := range frames {
		c.mm.dispatch(c, frame)
	}
}

// HandleWriteEvent flushes whatever is queued in wbuf.
func (c *connection) HandleWriteEvent() {
	c.mu.Lock()
	pending := c.wbuf
	c.mu.Unlock()
	if len(pending) == 0 {
		c.mm.reactor.DeregisterWriting(c)
		return
	}

	n, err := unix.Write(c.fd, pending)
	if err != nil && err != unix.EAGAIN {
		c.fail(err)
		return
	}

	c.mu.Lock()
	c.wbuf = c.wbuf[n:]
	remaining := len(c.wbuf)
	c.mu.Unlock()

	if remaining == 0 {
		c.mm.reactor.DeregisterWriting(c)
	}
}

func (c *connection) HandleError(err error) {
	c.fail(err)
}

func (c *connection) queueWrite(b []byte) {
	c.mu.Lock()
	empty := len(c.wbuf) == 0
	c.wbuf = append(c.wbuf, b...)
	c.mu.Unlock()

	if empty {
		c.mm.reactor.RegisterWriting(c)
	}
}

func (c *connection) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	peerNode := c.broker.Peer.NodeID
	hadPeer := c.broker.Peer.ProtocolVersion != 0 || len(c.broker.Peer.ApplicationIDs) > 0
	c.mu.Unlock()

	if c.mon != nil {
		c.mon.Stop()
	}
	c.broker.Close()
	c.mm.reactor.Deregister(c)
	_ = c.conn.Close()

	if c.onClose != nil {
		c.onClose(peerNode, hadPeer)
	}
}

// SendFrame implements proxy.Sender: it builds a BASP header for the given
// destination, registry-erased operation data, and payload, and queues the
// encoded frame for write. Errors surface as a false return rather than a
// panic, matching spec §4.9's proxy.Send contract.
func (c *connection) SendFrame(dest address.Address, operationData uint64, payload []byte) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	hdr := basp.Header{
		Operation:     basp.OpDirectMessage,
		PayloadLen:    uint32(len(payload)),
		OperationData: operationData,
		DestActor:     uint64(dest.Actor),
	}
	encoded := hdr.Encode()

	frame := make([]byte, 0, len(encoded)+len(payload))
	frame = append(frame, encoded[:]...)
	frame = append(frame, payload...)
	c.queueWrite(frame)
	return true
}

var _ proxy.Sender = (*connection)(nil)
var _ mux.Handler = (*connection)(nil)
