// Package registry implements the meta-object registry described in spec
// §4.1: a process-global table mapping a dense type-id to an erased
// descriptor (name, encode, decode, stringify) used by the distribution
// layer to serialize arbitrary payloads crossing a BASP connection.
//
// Local, same-process actor messaging never needs this table — Go generics
// already give compile-time type safety for that path (see
// internal/baselib/actor.Message). The registry exists specifically for the
// one place static typing cannot help: a BASP broker receiving bytes off
// the wire for a payload whose concrete Go type is only known by its
// type-id.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// TypeID is a dense, process-wide identifier for a registered payload type.
type TypeID uint32

// ErrUnknownType is returned by Lookup when no meta-object is registered
// for the given type-id, matching the "unknown_type" code in spec §6's
// error taxonomy.
var ErrUnknownType = fmt.Errorf("registry: unknown type")

// ErrConflict is returned by Insert when a type-id is re-registered with a
// different name than it already holds. Spec §4.1 calls such a conflict
// "fatal"; this package returns an error instead of panicking so the caller
// (normally a package init) can decide how fatal "fatal" should be, but
// MustInsert below preserves the panic-at-init-time behavior for callers
// that want it.
var ErrConflict = fmt.Errorf("registry: type-id registered under a different name")

// Encoder turns a concrete value into its wire representation.
type Encoder func(v any) ([]byte, error)

// Decoder parses a wire representation back into a concrete value.
type Decoder func(b []byte) (any, error)

// MetaObject is the erased descriptor for one registered type: enough
// information to move a same-named value across the wire and to print it
// for logs, without the distribution layer ever importing the concrete Go
// type.
type MetaObject struct {
	// Name is the human-readable, globally-unique type name (spec §4.1's
	// "human-readable name"). Re-registering the same (id, name) pair is
	// a no-op; registering two different names for one id makes Insert
	// return ErrConflict (MustInsert panics).
	Name string

	// Encode serializes a value of this type to bytes.
	Encode Encoder

	// Decode parses bytes back into a value of this type.
	Decode Decoder

	// Stringify renders a value for debug logging. Optional; if nil,
	// Stringify falls back to fmt.Sprintf("%+v", v).
	Stringify func(v any) string
}

func (m MetaObject) stringify(v any) string {
	if m.Stringify != nil {
		return m.Stringify(v)
	}
	return fmt.Sprintf("%+v", v)
}

// Registry is a process-wide, read-mostly table of MetaObjects indexed by
// TypeID. Writes are only expected during module init (spec §4.1); reads
// after initialization are lock-free via the embedded RWMutex's fast path
// under low contention, which is the same read-mostly pattern the teacher's
// Receptionist uses for its registration map.
type Registry struct {
	mu      sync.RWMutex
	byID    map[TypeID]MetaObject
	byName  map[string]TypeID
	guard   refGuard
	highest atomic.Uint32
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[TypeID]MetaObject),
		byName: make(map[string]TypeID),
	}
}

// Insert registers a contiguous range of entries starting at firstID, spec
// §4.1's `insert(first_id, entries)`. Re-inserting an entry identical to
// what is already registered (same id, same name) is a no-op; registering
// a different name under an id that is already taken returns ErrConflict.
func (r *Registry) Insert(firstID TypeID, entries []MetaObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range entries {
		id := firstID + TypeID(i)

		if existing, ok := r.byID[id]; ok {
			if existing.Name == entry.Name {
				// Idempotent re-registration.
				continue
			}
			log.ErrorS(context.Background(), "type-id conflict on insert", ErrConflict,
				"type_id", id, "existing_name", existing.Name, "tried_name", entry.Name)
			return fmt.Errorf("%w: id=%d has %q, tried to "+
				"register %q", ErrConflict, id,
				existing.Name, entry.Name)
		}

		if otherID, ok := r.byName[entry.Name]; ok && otherID != id {
			log.ErrorS(context.Background(), "type name conflict on insert", ErrConflict,
				"name", entry.Name, "existing_id", otherID, "tried_id", id)
			return fmt.Errorf("%w: name %q already registered "+
				"under id=%d, tried id=%d", ErrConflict,
				entry.Name, otherID, id)
		}

		r.byID[id] = entry
		r.byName[entry.Name] = id

		for {
			cur := r.highest.Load()
			if uint32(id) < cur || r.highest.CompareAndSwap(cur, uint32(id)+1) {
				break
			}
		}
	}

	return nil
}

// MustInsert is Insert but panics on error, intended for package-level
// init() calls where a registration conflict genuinely is fatal to process
// startup (spec §4.1: "conflicts are fatal").
func (r *Registry) MustInsert(firstID TypeID, entries []MetaObject) {
	if err := r.Insert(firstID, entries); err != nil {
		panic(err)
	}
}

// Lookup returns the MetaObject registered for id, or ErrUnknownType.
func (r *Registry) Lookup(id TypeID) (MetaObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return MetaObject{}, fmt.Errorf("%w: id=%d", ErrUnknownType, id)
	}
	return m, nil
}

// LookupByName returns the TypeID registered for a given name, or
// ErrUnknownType.
func (r *Registry) LookupByName(name string) (TypeID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: name=%q", ErrUnknownType, name)
	}
	return id, nil
}

// Stringify renders v using the registered type's Stringify hook, falling
// back to a generic representation if id is unknown.
func (r *Registry) Stringify(id TypeID, v any) string {
	m, err := r.Lookup(id)
	if err != nil {
		return fmt.Sprintf("<unknown type %d: %+v>", id, v)
	}
	return m.stringify(v)
}

// NextFreeID returns a TypeID higher than anything registered so far,
// convenient for callers that want to append entries without tracking the
// previous high-water mark themselves.
func (r *Registry) NextFreeID() TypeID {
	return TypeID(r.highest.Load())
}

// Guard returns a ref-counted handle that keeps this registry "alive" from
// the perspective of background goroutines (e.g. the BASP broker or the
// multiplexer reactor) that may still be running during process teardown,
// per spec §4.1's "ref-counted guard object". Because the registry is
// ordinary heap-allocated Go memory already kept alive by any goroutine
// closing over it, this guard is bookkeeping rather than a GC necessity: it
// lets Shutdown sequences wait for every background user of the registry
// to check out before considering teardown complete.
func (r *Registry) Guard() *RegistryGuard {
	r.guard.acquire()
	return &RegistryGuard{registry: r}
}

// Wait blocks until every outstanding guard has been released. Intended to
// be called after signaling shutdown to dependent goroutines, to confirm
// none of them still believe the registry is in use.
func (r *Registry) Wait() {
	r.guard.wait()
}

type refGuard struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

func (g *refGuard) acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done == nil {
		g.done = make(chan struct{})
	}
	g.count++
}

func (g *refGuard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count--
	if g.count == 0 && g.done != nil {
		close(g.done)
		g.done = nil
	}
}

func (g *refGuard) wait() {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RegistryGuard is a single background-thread's claim on a Registry's
// liveness. Release is idempotent.
type RegistryGuard struct {
	registry *Registry
	once     sync.Once
}

// Release relinquishes this guard's claim on the registry.
func (g *RegistryGuard) Release() {
	g.once.Do(g.registry.guard.release)
}
