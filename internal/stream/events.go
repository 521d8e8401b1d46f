// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package stream implements the realtime event pipeline: the wire event
// model, the fan-out broadcaster, and the lossy snapshot frame slot.
//
// Two delivery policies coexist deliberately and must not be unified:
//
//   - Broadcaster: discrete events (predictions, entity snapshots, metrics)
//     get a bounded per-subscriber mailbox with drop-oldest overflow, so a
//     slow dashboard never blocks the producer or its peers.
//   - FrameSlot: video frames are recency-only; a single overwritten cell,
//     no queueing, polled by consumers on their own cadence.
package stream

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Kind identifies the variant of a stream Event.
type Kind string

const (
	// KindPrediction is an inference result for the current camera frame.
	KindPrediction Kind = "prediction"

	// KindEntitySnapshot is a full replacement set of streetlight states.
	KindEntitySnapshot Kind = "entity_snapshot"

	// KindMetrics is an immutable energy/occupancy metrics snapshot.
	KindMetrics Kind = "metrics"
)

// Prediction carries one inference result from the detection model.
type Prediction struct {
	Class      string  `json:"prediction"`
	Confidence float64 `json:"confidence"` // percent, 0-100
}

// EntityState is the reported state of a single streetlight.
// Snapshots replace the entire set; there is no per-field patching.
type EntityState struct {
	ID         string  `json:"id"`
	Brightness float64 `json:"brightness"` // percent, 0-100
	Status     string  `json:"status,omitempty"`
}

// Entity status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Metrics is one immutable metrics snapshot from the brightness engine.
// Field names follow the producer payload.
type Metrics struct {
	ActivePower    float64   `json:"active_power"` // watts
	Baseline100    float64   `json:"baseline_100"` // watts at 100% brightness
	Baseline70     float64   `json:"baseline_70"`  // watts at 70% brightness
	SavingsVs100   float64   `json:"savings_vs_100"` // percent
	SavingsVs70    float64   `json:"savings_vs_70"`  // percent
	BrightnessDist []float64 `json:"brightness_dist"`
	Occupancy      int       `json:"occupancy"`
	Pedestrians    int       `json:"pedestrians"`
	Vehicles       int       `json:"vehicles"`
	SimTime        float64   `json:"sim_time"`
}

// Event is one element of the broadcast stream: exactly one of the variant
// payloads is set, selected by Kind.
type Event struct {
	Kind       Kind          `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	Prediction *Prediction   `json:"prediction,omitempty"`
	Entities   []EntityState `json:"entities,omitempty"`
	Metrics    *Metrics      `json:"metrics,omitempty"`
}

// NewPredictionEvent builds a prediction event stamped with now.
func NewPredictionEvent(class string, confidence float64) Event {
	return Event{
		Kind:      KindPrediction,
		Timestamp: time.Now().UTC(),
		Prediction: &Prediction{
			Class:      class,
			Confidence: confidence,
		},
	}
}

// NewEntitySnapshotEvent builds an entity snapshot event stamped with now.
func NewEntitySnapshotEvent(entities []EntityState) Event {
	return Event{
		Kind:      KindEntitySnapshot,
		Timestamp: time.Now().UTC(),
		Entities:  entities,
	}
}

// NewMetricsEvent builds a metrics snapshot event stamped with now.
func NewMetricsEvent(m Metrics) Event {
	return Event{
		Kind:      KindMetrics,
		Timestamp: time.Now().UTC(),
		Metrics:   &m,
	}
}

// wireMessage is the producer payload shape. Any subset of the top-level
// fields may be present in a single message; unrecognized fields are
// ignored.
type wireMessage struct {
	Prediction   *string       `json:"prediction"`
	Confidence   *float64      `json:"confidence"`
	Streetlights []EntityState `json:"streetlights"`
	Metrics      *Metrics      `json:"metrics"`
}

// DecodeWire parses one producer message into zero or more Events, in the
// fixed order prediction, entity snapshot, metrics. A parse failure returns
// an error and no events; the caller drops the message and keeps the
// subscription open.
func DecodeWire(data []byte) ([]Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode stream payload: %w", err)
	}

	now := time.Now().UTC()
	var events []Event

	if msg.Prediction != nil {
		confidence := 0.0
		if msg.Confidence != nil {
			confidence = *msg.Confidence
		}
		events = append(events, Event{
			Kind:      KindPrediction,
			Timestamp: now,
			Prediction: &Prediction{
				Class:      *msg.Prediction,
				Confidence: confidence,
			},
		})
	}

	if msg.Streetlights != nil {
		events = append(events, Event{
			Kind:      KindEntitySnapshot,
			Timestamp: now,
			Entities:  msg.Streetlights,
		})
	}

	if msg.Metrics != nil {
		events = append(events, Event{
			Kind:      KindMetrics,
			Timestamp: now,
			Metrics:   msg.Metrics,
		})
	}

	return events, nil
}

// Marshal encodes an event for delivery to dashboard clients.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
