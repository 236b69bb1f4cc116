// Package atom implements short, interned string constants used as tags on
// system control messages (spec §4.5's "sys_atom get info", §7's exit/down
// signals). It supplements spec.md with the original's atom concept
// (original_source/cppa/atom.hpp, cppa/detail/atom_val.hpp): a compact,
// comparable tag distinct from both a full string type and an opaque
// integer enum, cheap to compare and to log.
//
// The original packs a short string into the low bits of an integer at
// compile time. Go has no equivalent compile-time bit-packing trick that
// stays readable, so an Atom here is simply a validated, fixed-capacity
// string — the original's *intent* (a tiny, comparable, self-describing
// tag) is preserved without its C++-specific bit-packing mechanism.
package atom

import "fmt"

// MaxLen is the longest an atom's text may be, matching the original's
// 6-bits-per-character packing into a 64-bit word (10 characters at 6 bits
// each, with 4 bits to spare for a null terminator rationale).
const MaxLen = 10

// Atom is a short, comparable message tag.
type Atom string

// New validates s and returns it as an Atom, or an error if s is too long
// to have been representable in the original's packed encoding.
func New(s string) (Atom, error) {
	if len(s) > MaxLen {
		return "", fmt.Errorf("atom: %q exceeds max length %d", s, MaxLen)
	}
	return Atom(s), nil
}

// MustNew is New but panics on error, intended for package-level atom
// constant declarations where the literal is known to fit at compile time.
func MustNew(s string) Atom {
	a, err := New(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String implements fmt.Stringer.
func (a Atom) String() string { return string(a) }

// System control atoms used by the scheduled-actor dispatch loop (spec
// §4.5 step 2) and the ACB exit/monitor machinery (spec §3, §7).
var (
	GetInfo = MustNew("GetInfo")
	Ping    = MustNew("Ping")
	Pong    = MustNew("Pong")
	Kill    = MustNew("Kill")
	Down    = MustNew("Down")
	Exit    = MustNew("Exit")
)
