package atom_test

import (
	"testing"

	"github.com/basprt/actorframe/internal/baselib/atom"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsOverlong(t *testing.T) {
	_, err := atom.New("way-too-long-for-an-atom")
	require.Error(t, err)
}

func TestNewAcceptsShort(t *testing.T) {
	a, err := atom.New("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", a.String())
}

func TestMustNewPanicsOnOverlong(t *testing.T) {
	require.Panics(t, func() {
		atom.MustNew("definitely-too-long")
	})
}

func TestWellKnownAtomsDistinct(t *testing.T) {
	seen := map[atom.Atom]bool{}
	for _, a := range []atom.Atom{
		atom.GetInfo, atom.Ping, atom.Pong, atom.Kill, atom.Down, atom.Exit,
	} {
		require.False(t, seen[a], "duplicate atom %s", a)
		seen[a] = true
	}
}
