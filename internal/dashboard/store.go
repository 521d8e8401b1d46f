// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package dashboard

import (
	"context"
	"sync"

	"github.com/lumigrid/lumigrid/internal/detection"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
	"github.com/lumigrid/lumigrid/internal/telemetry"
)

// Chart history capacities. Power and savings charts show the recent
// trend; the occupancy correlation chart needs a longer tail to be
// readable as a scatter.
const (
	powerHistoryCap     = 20
	savingsHistoryCap   = 20
	occupancyHistoryCap = 50
)

// PowerSample is one point of the power consumption chart.
type PowerSample struct {
	SimTime     float64 `json:"sim_time"`
	ActivePower float64 `json:"active_power"`
	Baseline100 float64 `json:"baseline_100"`
	Baseline70  float64 `json:"baseline_70"`
}

// SavingsSample is one point of the energy savings chart.
type SavingsSample struct {
	SimTime      float64 `json:"sim_time"`
	SavingsVs100 float64 `json:"savings_vs_100"`
	SavingsVs70  float64 `json:"savings_vs_70"`
}

// OccupancySample is one point of the occupancy-brightness correlation
// chart.
type OccupancySample struct {
	SimTime        float64 `json:"sim_time"`
	Occupancy      int     `json:"occupancy"`
	MeanBrightness float64 `json:"mean_brightness"`
}

// View is a point-in-time copy of everything the dashboard renders.
type View struct {
	Connected        bool                 `json:"connected"`
	AccidentDetected bool                 `json:"accident_detected"`
	Entities         []stream.EntityState `json:"entities"`
	Metrics          *stream.Metrics      `json:"metrics,omitempty"`
	PowerHistory     []PowerSample        `json:"power_history"`
	SavingsHistory   []SavingsSample      `json:"savings_history"`
	OccupancyHistory []OccupancySample    `json:"occupancy_history"`
	Alerts           []detection.Alert    `json:"alerts"`
}

// Store folds the event stream into dashboard state. Writes arrive from a
// single consumer goroutine (Run); View may be called concurrently from
// any number of API handlers.
type Store struct {
	mu sync.RWMutex

	broadcaster *stream.Broadcaster
	reconciler  *detection.Reconciler

	projector *Projector
	power     *telemetry.Ring[PowerSample]
	savings   *telemetry.Ring[SavingsSample]
	occupancy *telemetry.Ring[OccupancySample]
	metrics   *stream.Metrics
	connected bool
}

// NewStore builds a store fed by the broadcaster and backed by the
// reconciler for alert state.
func NewStore(b *stream.Broadcaster, r *detection.Reconciler) *Store {
	return &Store{
		broadcaster: b,
		reconciler:  r,
		projector:   NewProjector(),
		power:       telemetry.NewRing[PowerSample](powerHistoryCap),
		savings:     telemetry.NewRing[SavingsSample](savingsHistoryCap),
		occupancy:   telemetry.NewRing[OccupancySample](occupancyHistoryCap),
	}
}

// Run subscribes to the broadcaster and folds events into the store until
// the context is cancelled or the broadcaster closes. It always returns
// nil on context cancellation so supervisors treat shutdown as normal.
func (s *Store) Run(ctx context.Context) error {
	sub := s.broadcaster.Subscribe()
	defer sub.Close()

	logging.Debug().Msg("dashboard store consuming event stream")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.Ingest(ev)
		}
	}
}

// Ingest folds one event into the dashboard state.
func (s *Store) Ingest(ev stream.Event) {
	switch ev.Kind {
	case stream.KindPrediction:
		if ev.Prediction == nil {
			return
		}
		// The reconciler has its own lock; keep it out of ours.
		s.reconciler.OnPrediction(ev.Prediction.Class, ev.Prediction.Confidence)

	case stream.KindEntitySnapshot:
		s.mu.Lock()
		s.projector.Apply(ev.Entities)
		s.mu.Unlock()

	case stream.KindMetrics:
		if ev.Metrics == nil {
			return
		}
		s.ingestMetrics(*ev.Metrics)

	default:
		logging.Warn().Str("kind", string(ev.Kind)).Msg("unknown event kind dropped")
	}
}

func (s *Store) ingestMetrics(m stream.Metrics) {
	// Percentage fields are clamped before anything is stored so charts
	// and the latest-metrics slot never see out-of-range producer values.
	// The distribution is copied; the event may still be in other
	// subscribers' mailboxes.
	m.SavingsVs100 = clampPercent(m.SavingsVs100)
	m.SavingsVs70 = clampPercent(m.SavingsVs70)
	dist := make([]float64, len(m.BrightnessDist))
	for i, b := range m.BrightnessDist {
		dist[i] = clampPercent(b)
	}
	m.BrightnessDist = dist

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = &m

	s.power.Push(PowerSample{
		SimTime:     m.SimTime,
		ActivePower: m.ActivePower,
		Baseline100: m.Baseline100,
		Baseline70:  m.Baseline70,
	})
	s.savings.Push(SavingsSample{
		SimTime:      m.SimTime,
		SavingsVs100: m.SavingsVs100,
		SavingsVs70:  m.SavingsVs70,
	})
	s.occupancy.Push(OccupancySample{
		SimTime:        m.SimTime,
		Occupancy:      m.Occupancy,
		MeanBrightness: meanBrightness(m.BrightnessDist),
	})
}

// SetConnected records whether the upstream producer link is live. The
// dashboard shows a banner when it goes down.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// Connected reports the upstream link state.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Entity returns the projected state of one streetlight.
func (s *Store) Entity(id string) (stream.EntityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projector.Get(id)
}

// View returns a consistent copy of the dashboard state. Ring contents are
// copied; callers may hold the result as long as they like.
func (s *Store) View() View {
	s.mu.RLock()
	v := View{
		Connected:        s.connected,
		Entities:         s.projector.All(),
		PowerHistory:     s.power.Snapshot(),
		SavingsHistory:   s.savings.Snapshot(),
		OccupancyHistory: s.occupancy.Snapshot(),
	}
	if s.metrics != nil {
		m := *s.metrics
		v.Metrics = &m
	}
	s.mu.RUnlock()

	v.AccidentDetected = s.reconciler.AccidentDetected()
	v.Alerts = s.reconciler.Alerts()
	return v
}

func meanBrightness(dist []float64) float64 {
	if len(dist) == 0 {
		return 0
	}
	var sum float64
	for _, b := range dist {
		sum += b
	}
	return sum / float64(len(dist))
}
