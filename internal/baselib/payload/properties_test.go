package payload_test

import (
	"testing"

	"github.com/basprt/actorframe/internal/baselib/payload"
	"github.com/basprt/actorframe/internal/baselib/registry"
	"pgregory.net/rapid"
)

func int64Registry(t *rapid.T) *registry.Registry {
	r := registry.New()
	err := r.Insert(1, []registry.MetaObject{
		{
			Name: "int64",
			Encode: func(v any) ([]byte, error) {
				return nil, nil
			},
			Decode: func(b []byte) (any, error) {
				return nil, nil
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// TestCopyOnWriteNeverObservedAcrossShares checks spec §8's core cow
// invariant for arbitrary sequences of shares and writes: no SetAt through
// one handle is ever visible through a handle obtained before that SetAt.
func TestCopyOnWriteNeverObservedAcrossShares(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := int64Registry(t)

		base, err := payload.Build(reg, []registry.TypeID{1}, []any{int64(0)})
		if err != nil {
			t.Fatal(err)
		}

		numHandles := rapid.IntRange(1, 6).Draw(t, "numHandles")
		handles := make([]*payload.Tuple, numHandles)
		snapshots := make([]int64, numHandles)
		for i := range handles {
			handles[i] = base.Share()
			snapshots[i] = handles[i].At(0).(int64)
		}

		writerIdx := rapid.IntRange(0, numHandles-1).Draw(t, "writerIdx")
		newVal := rapid.Int64().Draw(t, "newVal")

		if err := handles[writerIdx].SetAt(0, newVal); err != nil {
			t.Fatal(err)
		}

		for i, h := range handles {
			if i == writerIdx {
				continue
			}
			if h.At(0).(int64) != snapshots[i] {
				t.Fatalf("handle %d observed writer %d's mutation: got %v, want %v",
					i, writerIdx, h.At(0), snapshots[i])
			}
		}
	})
}

// TestCloneIsAlwaysIndependent checks that Clone never shares storage with
// its source, regardless of the source's own share count at clone time.
func TestCloneIsAlwaysIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := int64Registry(t)

		base, err := payload.Build(reg, []registry.TypeID{1}, []any{int64(0)})
		if err != nil {
			t.Fatal(err)
		}

		extraShares := rapid.IntRange(0, 4).Draw(t, "extraShares")
		for i := 0; i < extraShares; i++ {
			base.Share()
		}

		clone := base.Clone()
		newVal := rapid.Int64().Draw(t, "newVal")

		if err := clone.SetAt(0, newVal); err != nil {
			t.Fatal(err)
		}
		if base.At(0).(int64) == newVal && newVal != 0 {
			t.Fatalf("clone mutation leaked back into source")
		}
	})
}
