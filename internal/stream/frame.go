// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package stream

import (
	"sync"
	"time"

	"github.com/lumigrid/lumigrid/internal/metrics"
)

// FrameSlot holds the most recent camera snapshot frame. Writes replace the
// previous frame unconditionally; there is no history and no queue. Readers
// poll at their own cadence and may observe the same frame twice or skip
// frames entirely, which is the intended behavior for a live preview.
type FrameSlot struct {
	mu        sync.RWMutex
	frame     []byte
	updatedAt time.Time
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Write replaces the stored frame. The input is copied, so the caller may
// reuse its buffer. Empty input is ignored rather than clearing the slot.
func (s *FrameSlot) Write(frame []byte) {
	if len(frame) == 0 {
		return
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	s.mu.Lock()
	s.frame = buf
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()

	metrics.FrameWrites.Inc()
}

// Read returns a copy of the current frame and its write time. ok is false
// when no frame has been written yet.
func (s *FrameSlot) Read() (frame []byte, updatedAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics.FrameReads.Inc()

	if s.frame == nil {
		return nil, time.Time{}, false
	}

	buf := make([]byte, len(s.frame))
	copy(buf, s.frame)
	return buf, s.updatedAt, true
}

// Empty reports whether the slot has never been written.
func (s *FrameSlot) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame == nil
}
