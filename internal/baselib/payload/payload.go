// Package payload implements the copy-on-write, heterogeneous message
// tuple described in spec §4.2 ("Payload (Message)"), supplemented with the
// add_tuple_hint optimization from original_source/cppa/add_tuple_hint.hpp
// (see SPEC_FULL.md §C.2-3).
//
// A Tuple is immutable from any observer holding a shared reference; the
// only way to mutate an element is through SetAt, which copies the backing
// storage first if the Tuple is currently shared (refcount > 1), exactly
// mirroring the "mutation goes through a copy-if-shared path" invariant.
package payload

import (
	"fmt"

	"github.com/basprt/actorframe/internal/baselib/registry"
)

// ErrArityMismatch is returned when the number of values does not match the
// number of type-ids supplied to Build, violating the spec §4.2 invariant
// that "element count equals type-id-list length".
var ErrArityMismatch = fmt.Errorf("payload: value count does not match type-id count")

// data is the shared, ref-counted backing store for a Tuple. Multiple
// Tuple handles may point at the same data; SetAt copy-constructs a private
// data block before mutating whenever refCount > 1.
type data struct {
	refCount int32
	reg      *registry.Registry
	typeIDs  []registry.TypeID
	values   []any
}

// Tuple is a copy-on-write, heterogeneous, typed-by-registry value tuple.
// The zero value is not usable; construct one with Build.
type Tuple struct {
	d *data
}

// Build constructs a new Tuple from parallel type-id and value slices,
// validating that every type-id is registered and that the slices are the
// same length (spec §4.2's "constructed_elements" bookkeeping collapses to
// this single upfront check in Go, since there is no partial-construction
// failure mode once the slices are validated).
func Build(reg *registry.Registry, typeIDs []registry.TypeID, values []any) (*Tuple, error) {
	if len(typeIDs) != len(values) {
		return nil, fmt.Errorf("%w: %d type-ids, %d values",
			ErrArityMismatch, len(typeIDs), len(values))
	}

	for _, id := range typeIDs {
		if _, err := reg.Lookup(id); err != nil {
			return nil, fmt.Errorf("payload: element type-id %d: %w", id, err)
		}
	}

	idsCopy := make([]registry.TypeID, len(typeIDs))
	copy(idsCopy, typeIDs)
	valsCopy := make([]any, len(values))
	copy(valsCopy, values)

	return &Tuple{d: &data{
		refCount: 1,
		reg:      reg,
		typeIDs:  idsCopy,
		values:   valsCopy,
	}}, nil
}

// Share returns a new Tuple handle sharing this Tuple's backing storage,
// incrementing its reference count. This is the cow_ptr "share" operation:
// no data is copied until a subsequent SetAt forces a copy-if-shared.
func (t *Tuple) Share() *Tuple {
	t.d.refCount++
	return &Tuple{d: t.d}
}

// Len returns the number of elements in the tuple.
func (t *Tuple) Len() int { return len(t.d.typeIDs) }

// TypeIDs returns the tuple's type-id list, used by the BASP serializer to
// write the wire-format type-id list ahead of the values (spec §6).
func (t *Tuple) TypeIDs() []registry.TypeID {
	out := make([]registry.TypeID, len(t.d.typeIDs))
	copy(out, t.d.typeIDs)
	return out
}

// At returns the value at index i without copying. Callers must not mutate
// the returned value in place if it is a reference type (slice, map,
// pointer); use SetAt for that.
func (t *Tuple) At(i int) any {
	return t.d.values[i]
}

// IsShared reports whether this Tuple's backing storage has more than one
// outstanding handle, i.e. whether the next SetAt will need to copy.
func (t *Tuple) IsShared() bool {
	return t.d.refCount > 1
}

// SetAt sets the value at index i, copy-constructing the backing storage
// first if it is currently shared. This is spec §4.2's "mutation goes
// through a copy-if-shared path" and the original's at()/mutable_at()
// distinction (SPEC_FULL.md §C.2): At never copies, SetAt does when needed.
func (t *Tuple) SetAt(i int, v any) error {
	if i < 0 || i >= len(t.d.values) {
		return fmt.Errorf("payload: index %d out of range [0,%d)", i, len(t.d.values))
	}

	if t.d.refCount > 1 {
		t.copyOnWrite()
	}

	t.d.values[i] = v
	return nil
}

// copyOnWrite detaches this Tuple from its shared backing storage by
// allocating a private copy, decrementing the old storage's ref count.
func (t *Tuple) copyOnWrite() {
	oldData := t.d

	newValues := make([]any, len(oldData.values))
	copy(newValues, oldData.values)

	newIDs := make([]registry.TypeID, len(oldData.typeIDs))
	copy(newIDs, oldData.typeIDs)

	t.d = &data{
		refCount: 1,
		reg:      oldData.reg,
		typeIDs:  newIDs,
		values:   newValues,
	}

	oldData.refCount--
}

// Clone is an eager, unconditional copy (the original's cow_tuple::copy()),
// useful when a caller knows it wants to mutate and wants to skip the
// shared-check in SetAt.
func (t *Tuple) Clone() *Tuple {
	newValues := make([]any, len(t.d.values))
	copy(newValues, t.d.values)
	newIDs := make([]registry.TypeID, len(t.d.typeIDs))
	copy(newIDs, t.d.typeIDs)

	return &Tuple{d: &data{
		refCount: 1,
		reg:      t.d.reg,
		typeIDs:  newIDs,
		values:   newValues,
	}}
}

// Stringify renders the tuple for debug logging, dispatching each element
// to its registered meta-object's Stringify hook.
func (t *Tuple) Stringify() string {
	out := "("
	for i, id := range t.d.typeIDs {
		if i > 0 {
			out += ", "
		}
		out += t.d.reg.Stringify(id, t.d.values[i])
	}
	return out + ")"
}

// Hint is a precomputed type-id layout for a fixed tuple shape, letting a
// hot-path sender skip the per-element registry.Lookup validation Build
// otherwise performs. This is the original's add_tuple_hint optimization
// (SPEC_FULL.md §C.3): register a shape once, reuse it for every message of
// that shape.
type Hint struct {
	reg     *registry.Registry
	typeIDs []registry.TypeID
}

// NewHint validates typeIDs once against reg and returns a reusable Hint.
func NewHint(reg *registry.Registry, typeIDs []registry.TypeID) (*Hint, error) {
	for _, id := range typeIDs {
		if _, err := reg.Lookup(id); err != nil {
			return nil, fmt.Errorf("payload: hint type-id %d: %w", id, err)
		}
	}
	ids := make([]registry.TypeID, len(typeIDs))
	copy(ids, typeIDs)
	return &Hint{reg: reg, typeIDs: ids}, nil
}

// Build constructs a Tuple of this Hint's shape without re-validating
// type-ids against the registry.
func (h *Hint) Build(values []any) (*Tuple, error) {
	if len(values) != len(h.typeIDs) {
		return nil, fmt.Errorf("%w: %d type-ids, %d values",
			ErrArityMismatch, len(h.typeIDs), len(values))
	}

	valsCopy := make([]any, len(values))
	copy(valsCopy, values)
	idsCopy := make([]registry.TypeID, len(h.typeIDs))
	copy(idsCopy, h.typeIDs)

	return &Tuple{d: &data{
		refCount: 1,
		reg:      h.reg,
		typeIDs:  idsCopy,
		values:   valsCopy,
	}}, nil
}
