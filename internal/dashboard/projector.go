// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package dashboard aggregates the event stream into the queryable state
// the dashboard reads: projected entity states, bounded chart history, the
// latest metrics snapshot, and the alert window.
package dashboard

import (
	"sort"

	"github.com/lumigrid/lumigrid/internal/stream"
)

// Projector maintains the current streetlight states. Each entity snapshot
// replaces the whole set; a light absent from a snapshot is gone, not
// stale. Applying the same snapshot twice is a no-op.
//
// Projector is not safe for concurrent use; the Store serializes access.
type Projector struct {
	entities map[string]stream.EntityState
}

// NewProjector returns an empty projector.
func NewProjector() *Projector {
	return &Projector{
		entities: make(map[string]stream.EntityState),
	}
}

// Apply replaces the projected set with the snapshot. Brightness is
// clamped to [0, 100] and a missing status defaults to active. Entries
// with an empty ID are dropped; duplicate IDs keep the last occurrence.
func (p *Projector) Apply(entities []stream.EntityState) {
	next := make(map[string]stream.EntityState, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		e.Brightness = clampPercent(e.Brightness)
		if e.Status == "" {
			e.Status = stream.StatusActive
		}
		next[e.ID] = e
	}
	p.entities = next
}

// Get returns the projected state of one entity.
func (p *Projector) Get(id string) (stream.EntityState, bool) {
	e, ok := p.entities[id]
	return e, ok
}

// All returns the projected entities sorted by ID.
func (p *Projector) All() []stream.EntityState {
	out := make([]stream.EntityState, 0, len(p.entities))
	for _, e := range p.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of projected entities.
func (p *Projector) Len() int {
	return len(p.entities)
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
