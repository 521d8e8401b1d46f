// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package detection turns the raw prediction stream into a bounded,
// deduplicated alert window and manages the alert lifecycle through
// dispatch and resolution.
package detection

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Status is an alert's lifecycle state.
type Status string

const (
	// StatusActive is the initial state of a new alert.
	StatusActive Status = "active"

	// StatusInvestigating means responders have been dispatched.
	StatusInvestigating Status = "investigating"

	// StatusResolved is terminal; resolved alerts no longer suppress
	// new detections.
	StatusResolved Status = "resolved"
)

// KindAccident is the alert kind produced by the accident detector.
const KindAccident = "accident"

// Coordinates is an optional geographic position for an alert.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Alert is one detection in the alert window.
type Alert struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Severity    Severity     `json:"severity"`
	Location    string       `json:"location"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Description string       `json:"description"`
	Confidence  float64      `json:"confidence"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      Status       `json:"status"`
	Responders  int          `json:"responders"`
}

// Unresolved reports whether the alert still suppresses new detections of
// the same kind.
func (a *Alert) Unresolved() bool {
	return a.Status != StatusResolved
}

// newAlertID returns a fresh unique alert identifier.
func newAlertID() string {
	return uuid.NewString()
}

// Update is a partial modification applied to an existing alert. Nil
// fields are left untouched.
type Update struct {
	Status      *Status   `json:"status,omitempty"`
	Severity    *Severity `json:"severity,omitempty"`
	Description *string   `json:"description,omitempty"`
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}
