// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package telemetry

import "testing"

func TestRingPushBelowCapacity(t *testing.T) {
	r := NewRing[int](5)

	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	got := r.Snapshot()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingEvictsOldestFirst(t *testing.T) {
	// 25 pushes into a capacity-20 buffer keep exactly samples 6..25
	// in arrival order.
	r := NewRing[int](20)

	for i := 1; i <= 25; i++ {
		r.Push(i)
	}

	if r.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", r.Len())
	}
	got := r.Snapshot()
	for i := 0; i < 20; i++ {
		if got[i] != i+6 {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, got[i], i+6)
		}
	}
}

func TestRingCapacityNeverExceeded(t *testing.T) {
	capacities := []int{1, 2, 20, 50}
	for _, c := range capacities {
		r := NewRing[int](c)
		for i := 0; i < c*3+7; i++ {
			r.Push(i)
			if r.Len() > c {
				t.Fatalf("capacity %d: Len() = %d after %d pushes", c, r.Len(), i+1)
			}
		}
		if r.Cap() != c {
			t.Errorf("Cap() = %d, want %d", r.Cap(), c)
		}
	}
}

func TestRingSnapshotDoesNotMutate(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)

	snap := r.Snapshot()
	snap[0] = 99

	again := r.Snapshot()
	if again[0] != 1 {
		t.Errorf("Snapshot mutated ring: got %d, want 1", again[0])
	}
	if r.Len() != 2 {
		t.Errorf("Snapshot changed Len() = %d, want 2", r.Len())
	}
}

func TestRingLatest(t *testing.T) {
	r := NewRing[string](2)

	if _, ok := r.Latest(); ok {
		t.Error("Latest() on empty ring returned ok")
	}

	r.Push("a")
	r.Push("b")
	r.Push("c") // evicts "a"

	got, ok := r.Latest()
	if !ok || got != "c" {
		t.Errorf("Latest() = %q, %v, want %q, true", got, ok, "c")
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 10; i++ {
		r.Push(i)
	}

	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", r.Len())
	}
	r.Push(42)
	snap := r.Snapshot()
	if len(snap) != 1 || snap[0] != 42 {
		t.Errorf("Snapshot after Reset = %v, want [42]", snap)
	}
}

func TestRingZeroCapacityCoerced(t *testing.T) {
	r := NewRing[int](0)
	r.Push(7)
	if r.Cap() != 1 || r.Len() != 1 {
		t.Errorf("Cap() = %d, Len() = %d, want 1, 1", r.Cap(), r.Len())
	}
}
