// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package telemetry provides fixed-capacity history buffers for chart series.
//
// A Ring holds the most recent N samples of a metric series. Appends are
// O(1); when the buffer is full the oldest sample is evicted first. This
// keeps chart history bounded no matter how long the event stream runs.
package telemetry

// Ring is a fixed-capacity FIFO buffer over samples of type T.
//
// Complexity:
//   - Push: O(1)
//   - Snapshot: O(n) copy
//   - Memory: O(capacity), allocated once at construction
//
// Ring is not safe for concurrent use; the dashboard store confines each
// ring to its owning goroutine (see internal/dashboard).
type Ring[T any] struct {
	buf   []T // circular storage, len(buf) == capacity
	head  int // index of the oldest sample
	count int // number of valid samples
}

// NewRing creates a ring buffer holding at most capacity samples.
// A non-positive capacity is coerced to 1 so Push never panics.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// Push appends a sample. If the ring is full the oldest sample is evicted.
func (r *Ring[T]) Push(sample T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = sample
		r.count++
		return
	}

	// Full: overwrite the oldest slot and advance the head.
	r.buf[r.head] = sample
	r.head = (r.head + 1) % len(r.buf)
}

// Snapshot returns the current samples in arrival order, oldest first.
// The returned slice is a copy; mutating it does not affect the ring.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of samples currently held.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity set at construction.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Latest returns the most recently pushed sample, or the zero value and
// false when the ring is empty.
func (r *Ring[T]) Latest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// Reset discards all samples without releasing the storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}
