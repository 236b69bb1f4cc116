// Package middleman implements the spec §4.10 façade: it owns the
// multiplexer and its thread, and exposes Publish/Unpublish/Connect/
// RemoteActor as the only entry points to the distribution layer. Reads
// and writes on a connection's socket run on the reactor's own goroutine.
// Dialing runs on the caller's goroutine, accepting on one goroutine per
// listener, and a connection-timeout close on the heartbeat timer's
// goroutine.
package middleman

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/basprt/actorframe/internal/baselib/address"
	"github.com/basprt/actorframe/internal/net/basp"
	"github.com/basprt/actorframe/internal/net/mux"
	"github.com/basprt/actorframe/internal/net/proxy"
)

// maxConcurrentOutboundConnects bounds how many Connect/RemoteActor dials
// can be in flight at once, matching spec §6's
// middleman.max-consecutive-reads budgeting spirit applied to outbound
// connection attempts: a burst of simultaneous remote_actor calls must
// not open an unbounded number of sockets at once.
const maxConcurrentOutboundConnects = 8

// Dispatcher receives decoded, fully-framed direct-message payloads
// arriving from a peer, keyed by the destination actor-id the frame
// named. This is the seam between the distribution layer and whatever
// local actor-system lookup resolves an actor-id to a mailbox; middleman
// itself has no opinion on how that resolution happens.
type Dispatcher interface {
	DeliverRemote(from address.Address, destActor address.ActorID, operationData uint64, payload []byte)
}

// Config bundles the identity and policy middleman needs, per spec §6's
// configuration surface (app-identifiers, heartbeat-interval,
// connection-timeout).
type Config struct {
	Local basp.HandshakeInfo

	// HeartbeatInterval and ConnectionTimeout mirror spec §6's
	// middleman.heartbeat-interval / middleman.connection-timeout
	// configuration keys. Zero disables the corresponding timer.
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration

	Dispatcher Dispatcher
}

// Middleman is the process-wide distribution façade described in spec
// §4.10.
type Middleman struct {
	local      basp.HandshakeInfo
	dispatcher Dispatcher

	reactor *mux.Reactor
	proxies *proxy.Cache

	mu          sync.Mutex
	listeners   map[int]*net.TCPListener
	connections map[address.NodeID]*connection

	heartbeatInterval time.Duration
	connectionTimeout time.Duration

	connectSem  *semaphore.Weighted
	acceptGroup *errgroup.Group
}

// New constructs a Middleman with its own reactor and proxy cache, but
// does not start the reactor loop; call Run (normally from its own
// goroutine) to do that.
func New(cfg Config) (*Middleman, error) {
	reactor, err := mux.New()
	if err != nil {
		return nil, fmt.Errorf("middleman: creating reactor: %w", err)
	}

	mm := &Middleman{
		local:             cfg.Local,
		dispatcher:        cfg.Dispatcher,
		reactor:           reactor,
		proxies:           proxy.New(),
		listeners:         make(map[int]*net.TCPListener),
		connections:       make(map[address.NodeID]*connection),
		heartbeatInterval: cfg.HeartbeatInterval,
		connectionTimeout: cfg.ConnectionTimeout,
		connectSem:        semaphore.NewWeighted(maxConcurrentOutboundConnects),
		acceptGroup:       &errgroup.Group{},
	}
	return mm, nil
}

// Run drives the reactor's poll loop. It blocks until Shutdown is called
// or a fatal poll error occurs; callers run it on a dedicated goroutine,
// matching spec §4.10's "owns the multiplexer and its thread."
func (mm *Middleman) Run() error {
	return mm.reactor.Run()
}

// Shutdown stops the reactor and closes every listener and connection.
func (mm *Middleman) Shutdown() {
	mm.mu.Lock()
	listeners := make([]*net.TCPListener, 0, len(mm.listeners))
	for _, l := range mm.listeners {
		listeners = append(listeners, l)
	}
	mm.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	// acceptLoop goroutines exit once their listener's Close causes
	// AcceptTCP to error; wait for them so Shutdown only returns once
	// every accept loop has actually stopped.
	_ = mm.acceptGroup.Wait()
	mm.reactor.Shutdown()
}

// Publish binds a listening TCP socket on port and accepts inbound BASP
// connections on it, per spec §4.10's `publish(actor, port, address,
// reuse) → port`. Accepted connections run the inbound handshake and are
// registered with the reactor once established. Returns the bound port
// (useful when port == 0 for an ephemeral port).
func (mm *Middleman) Publish(bindAddr string, port int) (int, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP(bindAddr), Port: port})
	if err != nil {
		return 0, fmt.Errorf("middleman: listen: %w", err)
	}

	boundPort := ln.Addr().(*net.TCPAddr).Port

	mm.mu.Lock()
	mm.listeners[boundPort] = ln
	mm.mu.Unlock()

	mm.acceptGroup.Go(func() error {
		mm.acceptLoop(ln)
		return nil
	})

	return boundPort, nil
}

// Unpublish closes the listener bound to port. Existing connections
// accepted through it are left running, per spec §4.10.
func (mm *Middleman) Unpublish(port int) error {
	mm.mu.Lock()
	ln, ok := mm.listeners[port]
	delete(mm.listeners, port)
	mm.mu.Unlock()

	if !ok {
		return fmt.Errorf("middleman: no listener on port %d", port)
	}
	return ln.Close()
}

func (mm *Middleman) acceptLoop(ln *net.TCPListener) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			return
		}
		mm.adopt(conn, false, nil, nil)
	}
}

// Connect initiates an outbound BASP handshake to host:port, per spec
// §4.10's `connect(host, port) → node-id`. It returns once the TCP dial
// succeeds; the handshake itself completes asynchronously on the reactor
// goroutine, racing with any concurrent inbound connection from the same
// peer — callers needing a synchronous result should use RemoteActor.
// The returned NodeID is this middleman's own node-id, not the peer's.
func (mm *Middleman) Connect(ctx context.Context, host string, port int) (address.NodeID, error) {
	if err := mm.connectSem.Acquire(ctx, 1); err != nil {
		return address.NodeID{}, fmt.Errorf("middleman: acquiring connect slot: %w", err)
	}
	defer mm.connectSem.Release(1)

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return address.NodeID{}, fmt.Errorf("middleman: dial: %w", err)
	}
	conn := raw.(*net.TCPConn)

	mm.adopt(conn, true, nil, nil)

	return mm.local.NodeID, nil
}

// RemoteActor connects to host:port and returns a proxy for the actor the
// peer published at actorID, once the handshake completes and the peer's
// application-id set is compatible with ours. It blocks until the
// handshake finishes or ctx is cancelled, matching spec §4.10's
// "remote_actor(host, port, ifs) → actor blocking wrapper."
func (mm *Middleman) RemoteActor(ctx context.Context, host string, port int, actorID address.ActorID) (*proxy.Proxy, error) {
	if err := mm.connectSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("middleman: acquiring connect slot: %w", err)
	}
	defer mm.connectSem.Release(1)

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("middleman: dial: %w", err)
	}
	conn := raw.(*net.TCPConn)

	ready := make(chan address.NodeID, 1)
	failed := make(chan error, 1)

	mm.adopt(conn, true, ready, failed)

	select {
	case node := <-ready:
		addr := address.New(node, 1, actorID)
		return mm.proxies.Get(addr, mm.connectionFor(node)), nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (mm *Middleman) connectionFor(node address.NodeID) proxy.Sender {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.connections[node]
}

// adopt wraps conn in a connection, wires its lifecycle callbacks, and
// registers it with the reactor. ready/failed, if non-nil, are notified at
// most once: ready on handshake completion, failed if the fd could not be
// obtained. A connection that closes before its handshake completes
// notifies neither.
func (mm *Middleman) adopt(
	conn *net.TCPConn,
	outbound bool,
	ready chan<- address.NodeID,
	failed chan<- error,
) *connection {
	_ = conn.SetNoDelay(true)

	fd, err := fdOf(conn)
	if err != nil {
		if failed != nil {
			failed <- err
		}
		_ = conn.Close()
		return nil
	}

	var broker *basp.Broker
	if outbound {
		broker = basp.NewOutboundBroker(mm.local, mm.validateHandshake)
	} else {
		broker = basp.NewInboundBroker(mm.local, mm.validateHandshake)
	}

	c := &connection{mm: mm, conn: conn, fd: fd, broker: broker}
	c.onClose = func(peerNode address.NodeID, hadPeer bool) {
		if hadPeer {
			mm.forgetConnection(peerNode)
		}
	}
	if ready != nil {
		c.onHandshake = func(peerNode address.NodeID) {
			mm.rememberConnection(peerNode, c)
			ready <- peerNode
		}
	} else {
		c.onHandshake = func(peerNode address.NodeID) {
			mm.rememberConnection(peerNode, c)
		}
	}

	if mm.heartbeatInterval > 0 || mm.connectionTimeout > 0 {
		c.mon = basp.NewHeartbeatMonitor(
			mm.heartbeatInterval,
			mm.connectionTimeout,
			func() { c.queueWrite(heartbeatFrame()) },
			func() { c.fail(fmt.Errorf("middleman: connection timed out")) },
		)
	}

	mm.reactor.RegisterReading(c)

	// The accepting side opens with the server handshake; the connecting
	// side's client handshake is produced by its broker's Feed.
	if !outbound {
		c.queueWrite(broker.InitialHandshake())
	}

	return c
}

func (mm *Middleman) rememberConnection(node address.NodeID, c *connection) {
	mm.mu.Lock()
	mm.connections[node] = c
	mm.mu.Unlock()

	log.InfoS(context.Background(), "peer handshake complete",
		"node_id", node.String())
}

func (mm *Middleman) forgetConnection(node address.NodeID) {
	mm.mu.Lock()
	delete(mm.connections, node)
	mm.mu.Unlock()

	log.InfoS(context.Background(), "peer connection lost, erasing proxies",
		"node_id", node.String())
	mm.proxies.EraseAll(node, 1, nil)
}

func (mm *Middleman) validateHandshake(local, peer basp.HandshakeInfo) error {
	if !basp.CompatibleAppIDs(local, peer) {
		return basp.NewError(basp.CodeInvalidArgument, "incompatible application-id set")
	}
	return nil
}

// dispatch is called by a connection for every decoded frame, forwarding
// the direct-message ones to the configured Dispatcher.
func (mm *Middleman) dispatch(c *connection, frame basp.Frame) {
	if mm.dispatcher == nil || frame.Header.Operation != basp.OpDirectMessage {
		return
	}
	from := address.New(c.broker.Peer.NodeID, 1, address.ActorID(frame.Header.SourceActor))
	mm.dispatcher.DeliverRemote(from, address.ActorID(frame.Header.DestActor), frame.Header.OperationData, frame.Payload)
}

func heartbeatFrame() []byte {
	hdr := basp.Header{Operation: basp.OpHeartbeat}
	encoded := hdr.Encode()
	return encoded[:]
}
