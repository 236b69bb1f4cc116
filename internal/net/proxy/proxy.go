// Package proxy implements the per-runtime actor-proxy cache described in
// spec §4.9: a map from (node-id, process-id, actor-id) to a weak proxy
// reference, so a dead peer's proxies don't pin memory the runtime can
// otherwise reclaim, while a live send can still reach them.
package proxy

import (
	"context"
	"sync"
	"weak"

	"github.com/basprt/actorframe/internal/baselib/address"
)

// Sender marshals a message out over whatever connection a Proxy is bound
// to. Implemented by the BASP broker/connection layer; kept as a narrow
// interface so proxy itself has no import-time dependency on the
// multiplexer or socket types.
type Sender interface {
	SendFrame(dest address.Address, operationData uint64, payload []byte) bool
}

// Proxy is the local stand-in for a remote actor described in spec §4.9: a
// handle whose Send marshals a BASP frame out over its owning connection
// rather than delivering to a local mailbox. It keeps no reference count;
// it is removed from the cache only by Kill or, once garbage collected,
// by Cache.Compact. Proxy
// values must always be held and handed out as *Proxy — the cache keeps
// only a weak.Pointer to the same allocation, so anything that needs the
// proxy to stay alive must hold its own *Proxy.
type Proxy struct {
	addr   address.Address
	sender Sender

	mu     sync.Mutex
	killed bool
	onKill func()
}

// newProxy constructs a Proxy bound to sender for addr. onKill, if
// non-nil, is invoked exactly once when the proxy is killed, either
// explicitly (Cache.Erase/EraseAll) or because its strong count elsewhere
// fell to zero and the caller noticed via a finalizer-free path (Go has no
// analog to the original's ref-counted destructor, so callers that need
// "strong count hit zero" semantics must call Kill explicitly when they
// drop their last reference).
func newProxy(addr address.Address, sender Sender, onKill func()) *Proxy {
	return &Proxy{addr: addr, sender: sender, onKill: onKill}
}

// Address returns the remote address this proxy represents.
func (p *Proxy) Address() address.Address { return p.addr }

// Send marshals payload to the remote actor. It returns false if the proxy
// has already been killed.
func (p *Proxy) Send(operationData uint64, payload []byte) bool {
	p.mu.Lock()
	killed := p.killed
	p.mu.Unlock()
	if killed {
		return false
	}
	return p.sender.SendFrame(p.addr, operationData, payload)
}

// Kill tears the proxy down. Idempotent.
func (p *Proxy) Kill() {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	onKill := p.onKill
	p.mu.Unlock()

	if onKill != nil {
		onKill()
	}
}

// Killed reports whether Kill has already run.
func (p *Proxy) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type key struct {
	node    address.NodeID
	process address.ProcessID
	actor   address.ActorID
}

func keyOf(a address.Address) key {
	return key{node: a.Node, process: a.Process, actor: a.Actor}
}

// Cache is the process-wide proxy-interning table described in spec §4.9,
// guarded by a shared/exclusive (RWMutex) lock. The zero value is not
// usable; construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]weak.Pointer[Proxy]
}

// New constructs an empty proxy cache.
func New() *Cache {
	return &Cache{entries: make(map[key]weak.Pointer[Proxy])}
}

// Get performs the double-checked lookup spec §4.9 describes: a
// shared-lock probe first, falling back to an exclusive-locked probe plus
// insertion if no live entry is found. sender is only consumed if a new
// Proxy actually needs to be created; the new proxy's kill hook removes
// the cache entry so a killed proxy never shadows a future Get.
func (c *Cache) Get(addr address.Address, sender Sender) *Proxy {
	k := keyOf(addr)

	if p, ok := c.lookupShared(k); ok {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the exclusive lock: another goroutine may have won
	// the race to insert between our shared probe and acquiring the
	// exclusive lock.
	if ptr, ok := c.entries[k]; ok {
		if p := ptr.Value(); p != nil {
			return p
		}
	}

	p := newProxy(addr, sender, func() { c.forget(k) })
	c.entries[k] = weak.Make(p)
	return p
}

func (c *Cache) forget(k key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

func (c *Cache) lookupShared(k key) (*Proxy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ptr, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	p := ptr.Value()
	if p == nil {
		return nil, false
	}
	return p, true
}

// Lookup reports whether a live proxy is currently interned for addr,
// without creating one.
func (c *Cache) Lookup(addr address.Address) (*Proxy, bool) {
	return c.lookupShared(keyOf(addr))
}

// Erase removes the entry for addr, killing whatever proxy was interned
// there, if it was still live.
func (c *Cache) Erase(addr address.Address) {
	p, ok := c.lookupShared(keyOf(addr))
	if !ok {
		return
	}
	log.DebugS(context.Background(), "erasing proxy", "actor_id", addr.Actor)
	p.Kill()
}

// EraseAll bulk-removes every entry for (node, process) — spec §4.9's
// "erase_all(node, process, fn) bulk-removes entries for a peer that
// died." fn, if non-nil, is invoked once per removed live proxy before it
// is killed, letting a caller notify watchers before teardown.
func (c *Cache) EraseAll(node address.NodeID, process address.ProcessID, fn func(*Proxy)) {
	c.mu.RLock()
	var toKill []*Proxy
	for k, ptr := range c.entries {
		if k.node != node || k.process != process {
			continue
		}
		if p := ptr.Value(); p != nil {
			toKill = append(toKill, p)
		}
	}
	c.mu.RUnlock()

	if len(toKill) > 0 {
		log.InfoS(context.Background(), "erasing proxies for dead peer",
			"node_id", node.String(), "process_id", process, "count", len(toKill))
	}

	for _, p := range toKill {
		if fn != nil {
			fn(p)
		}
		// Kill calls back into forget, which takes the exclusive lock
		// itself; we must not be holding it here.
		p.Kill()
	}
}

// Len reports the number of entries currently tracked, including ones
// whose weak pointer has already expired (a lazily-reclaimed accounting
// figure). Callers needing an exact live count should call Compact first.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Compact drops entries whose weak pointer has already expired, reclaiming
// the map slot. Proxies are normally removed via the Kill -> forget path,
// so Compact only matters for a proxy that was garbage collected without
// ever being explicitly killed (e.g. a test dropping its last reference).
func (c *Cache) Compact() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, ptr := range c.entries {
		if ptr.Value() == nil {
			delete(c.entries, k)
		}
	}
}
