// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/metrics"
)

// Reconciler errors.
var (
	ErrAlertNotFound = errors.New("alert not found")

	// ErrNotDispatchable is returned when dispatch is requested for an
	// alert that is already investigating or resolved.
	ErrNotDispatchable = errors.New("alert is not in a dispatchable state")
)

// Dispatcher requests responder units for an alert. Implementations must
// respect the context deadline.
type Dispatcher interface {
	Dispatch(ctx context.Context, alertID, action string) error
}

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	// WindowSize caps the alert window; oldest alerts fall off the end.
	WindowSize int

	// ConfidenceThreshold is the exclusive minimum confidence (percent)
	// for a prediction to raise an alert.
	ConfidenceThreshold float64

	// Location labels new alerts with the monitored site.
	Location string

	// Coordinates optionally pins new alerts on the map.
	Coordinates *Coordinates
}

const (
	defaultWindowSize          = 10
	defaultConfidenceThreshold = 90.0
	defaultLocation            = "Monitored intersection"

	// New alerts start with a couple of responders pre-assigned; the
	// automated detection always pages the on-call pair.
	defaultResponders = 2

	defaultDispatchAction = "dispatch"
)

// Reconciler maintains the bounded alert window and drives the alert
// lifecycle. It is safe for concurrent use: the ingest goroutine feeds
// predictions while API handlers dispatch and update.
//
// DEDUP INVARIANT: at most one unresolved accident alert exists at any
// time. Qualifying predictions arriving while one is unresolved are
// suppressed, not queued.
type Reconciler struct {
	mu         sync.Mutex
	alerts     []*Alert // newest first
	detected   bool     // latest prediction qualified
	opts       Options
	dispatcher Dispatcher
}

// NewReconciler builds a reconciler with the given dispatcher. A nil
// dispatcher makes Dispatch fail cleanly rather than panic.
func NewReconciler(opts Options, d Dispatcher) *Reconciler {
	if opts.WindowSize <= 0 {
		opts.WindowSize = defaultWindowSize
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if opts.Location == "" {
		opts.Location = defaultLocation
	}
	return &Reconciler{
		opts:       opts,
		dispatcher: d,
	}
}

// OnPrediction reconciles one inference result against the alert window.
// It returns the created alert when the prediction raised one, or nil when
// the prediction did not qualify or was suppressed by an unresolved
// accident alert.
func (r *Reconciler) OnPrediction(class string, confidence float64) *Alert {
	qualifies := class == "Accident" && confidence > r.opts.ConfidenceThreshold

	r.mu.Lock()
	defer r.mu.Unlock()

	// The live detection indicator tracks the latest prediction only.
	// A non-qualifying prediction clears it even while an alert from an
	// earlier detection is still being worked.
	r.detected = qualifies
	if !qualifies {
		return nil
	}

	for _, a := range r.alerts {
		if a.Kind == KindAccident && a.Unresolved() {
			metrics.AlertsSuppressed.Inc()
			return nil
		}
	}

	alert := &Alert{
		ID:          newAlertID(),
		Kind:        KindAccident,
		Severity:    SeverityCritical,
		Location:    r.opts.Location,
		Coordinates: r.opts.Coordinates,
		Description: fmt.Sprintf("Accident detected with %.1f%% confidence", confidence),
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
		Status:      StatusActive,
		Responders:  defaultResponders,
	}

	r.alerts = append([]*Alert{alert}, r.alerts...)
	if len(r.alerts) > r.opts.WindowSize {
		r.alerts = r.alerts[:r.opts.WindowSize]
	}

	metrics.AlertsCreated.Inc()
	logging.Info().
		Str("alert_id", alert.ID).
		Float64("confidence", confidence).
		Msg("accident alert created")

	out := *alert
	return &out
}

// Dispatch requests responders for an active alert. An empty action asks
// for the generic responder unit. The status transition to investigating
// is optimistic: it is applied before the responder call and reverted if
// the call fails. The responder counter is not reverted on failure; units
// may already be en route by the time the error surfaces, and the counter
// tracks requests made, not confirmations.
func (r *Reconciler) Dispatch(ctx context.Context, alertID, action string) (Alert, error) {
	if action == "" {
		action = defaultDispatchAction
	}

	r.mu.Lock()
	alert := r.find(alertID)
	if alert == nil {
		r.mu.Unlock()
		metrics.RecordDispatch("rejected", 0)
		return Alert{}, fmt.Errorf("dispatch %s: %w", alertID, ErrAlertNotFound)
	}
	if alert.Status != StatusActive {
		r.mu.Unlock()
		metrics.RecordDispatch("rejected", 0)
		return Alert{}, fmt.Errorf("dispatch %s in state %s: %w", alertID, alert.Status, ErrNotDispatchable)
	}

	alert.Status = StatusInvestigating
	alert.Responders++
	r.mu.Unlock()

	if r.dispatcher == nil {
		r.revertDispatch(alertID)
		metrics.RecordDispatch("failed", 0)
		return Alert{}, fmt.Errorf("dispatch %s: no dispatcher configured", alertID)
	}

	start := time.Now()
	err := r.dispatcher.Dispatch(ctx, alertID, action)
	elapsed := time.Since(start)

	if err != nil {
		r.revertDispatch(alertID)
		metrics.RecordDispatch("failed", elapsed)
		logging.Err(err).Str("alert_id", alertID).Msg("responder dispatch failed")
		return Alert{}, fmt.Errorf("dispatch %s: %w", alertID, err)
	}

	metrics.RecordDispatch("ok", elapsed)
	logging.Info().Str("alert_id", alertID).Str("action", action).Msg("responders dispatched")

	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.find(alertID); a != nil {
		return *a, nil
	}
	// The alert aged out of the window during the responder call.
	return Alert{}, fmt.Errorf("dispatch %s: %w", alertID, ErrAlertNotFound)
}

// revertDispatch undoes the optimistic status transition after a failed
// responder call, leaving the responder counter as-is.
func (r *Reconciler) revertDispatch(alertID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.find(alertID); a != nil && a.Status == StatusInvestigating {
		a.Status = StatusActive
	}
}

// Update applies a partial modification to an alert and returns the
// result. Unknown IDs return ErrAlertNotFound without side effects.
func (r *Reconciler) Update(alertID string, upd Update) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert := r.find(alertID)
	if alert == nil {
		return Alert{}, fmt.Errorf("update %s: %w", alertID, ErrAlertNotFound)
	}

	if upd.Status != nil {
		if !ValidStatus(*upd.Status) {
			return Alert{}, fmt.Errorf("update %s: invalid status %q", alertID, *upd.Status)
		}
		alert.Status = *upd.Status
	}
	if upd.Severity != nil {
		if !ValidSeverity(*upd.Severity) {
			return Alert{}, fmt.Errorf("update %s: invalid severity %q", alertID, *upd.Severity)
		}
		alert.Severity = *upd.Severity
	}
	if upd.Description != nil {
		alert.Description = *upd.Description
	}

	return *alert, nil
}

// Get returns a copy of one alert by ID.
func (r *Reconciler) Get(alertID string) (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.find(alertID); a != nil {
		return *a, true
	}
	return Alert{}, false
}

// Alerts returns a copy of the window, newest first.
func (r *Reconciler) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Alert, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = *a
	}
	return out
}

// AccidentDetected reports whether the latest prediction was a qualifying
// accident. This drives the live detection indicator and is presentation
// state, not alert state: a subsequent clean prediction clears it even
// while the alert it raised is still unresolved.
func (r *Reconciler) AccidentDetected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detected
}

// find returns the window entry for alertID, or nil. Caller holds r.mu.
func (r *Reconciler) find(alertID string) *Alert {
	for _, a := range r.alerts {
		if a.ID == alertID {
			return a
		}
	}
	return nil
}
