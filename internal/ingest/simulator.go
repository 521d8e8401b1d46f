// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/lumigrid/lumigrid/internal/config"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
)

// Simulator generates plausible streetlight telemetry so the dashboard can
// be developed and demoed without the real producers. It publishes the
// same event shapes the NATS bridge would.
type Simulator struct {
	cfg         config.SimulatorConfig
	broadcaster *stream.Broadcaster
	tracker     ConnectionTracker
	rng         *rand.Rand
}

// NewSimulator builds a simulator. tracker may be nil.
func NewSimulator(cfg config.SimulatorConfig, b *stream.Broadcaster, tracker ConnectionTracker) *Simulator {
	return &Simulator{
		cfg:         cfg,
		broadcaster: b,
		tracker:     tracker,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits one telemetry tick per interval until the context is canceled.
func (s *Simulator) Run(ctx context.Context) error {
	if s.tracker != nil {
		s.tracker.SetConnected(true)
		defer s.tracker.SetConnected(false)
	}

	logging.Info().
		Dur("interval", s.cfg.Interval).
		Int("streetlights", s.cfg.Streetlights).
		Msg("telemetry simulator running")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	simTime := 0.0
	brightness := make([]float64, s.cfg.Streetlights)
	for i := range brightness {
		brightness[i] = 70
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			simTime += s.cfg.Interval.Seconds()
			s.tick(simTime, brightness)
		}
	}
}

func (s *Simulator) tick(simTime float64, brightness []float64) {
	// Occupancy follows a slow day/night style wave plus noise.
	wave := (math.Sin(simTime/30) + 1) / 2
	occupancy := int(wave*8) + s.rng.Intn(3)
	pedestrians := occupancy / 2
	vehicles := occupancy - pedestrians

	entities := make([]stream.EntityState, len(brightness))
	for i := range brightness {
		target := 70.0
		if occupancy > 4 {
			target = 100
		}
		// Lights converge toward the target with a little jitter.
		brightness[i] += (target-brightness[i])*0.5 + s.rng.Float64()*4 - 2
		brightness[i] = math.Max(0, math.Min(100, brightness[i]))

		entities[i] = stream.EntityState{
			ID:         fmt.Sprintf("sl-%02d", i+1),
			Brightness: math.Round(brightness[i]),
			Status:     stream.StatusActive,
		}
	}

	const wattsPerLight = 200.0
	var power float64
	for _, b := range brightness {
		power += wattsPerLight * b / 100
	}
	baseline100 := wattsPerLight * float64(len(brightness))
	baseline70 := baseline100 * 0.7

	m := stream.Metrics{
		ActivePower:    math.Round(power*10) / 10,
		Baseline100:    baseline100,
		Baseline70:     baseline70,
		SavingsVs100:   math.Round((1-power/baseline100)*1000) / 10,
		SavingsVs70:    math.Round((1-power/baseline70)*1000) / 10,
		BrightnessDist: append([]float64(nil), brightness...),
		Occupancy:      occupancy,
		Pedestrians:    pedestrians,
		Vehicles:       vehicles,
		SimTime:        simTime,
	}

	s.broadcaster.Publish(stream.NewEntitySnapshotEvent(entities))
	s.broadcaster.Publish(stream.NewMetricsEvent(m))

	// Rare accident so the alert path stays demoable.
	if s.rng.Float64() < 0.01 {
		s.broadcaster.Publish(stream.NewPredictionEvent("Accident", 91+s.rng.Float64()*8))
	} else {
		s.broadcaster.Publish(stream.NewPredictionEvent("No Accident", 60+s.rng.Float64()*35))
	}
}
