// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package ingest feeds the event pipeline from its upstream sources: the
// NATS bridge for production deployments, an optional embedded NATS server
// for single-binary setups, and a telemetry simulator for development.
package ingest

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/lumigrid/lumigrid/internal/config"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/metrics"
	"github.com/lumigrid/lumigrid/internal/stream"
)

// ConnectionTracker receives upstream link state changes. The dashboard
// store implements this to drive its connectivity banner.
type ConnectionTracker interface {
	SetConnected(bool)
}

// Bridge subscribes to the producer subjects on NATS and forwards decoded
// events into the broadcaster and raw frames into the frame slot.
type Bridge struct {
	cfg         config.NATSConfig
	broadcaster *stream.Broadcaster
	frames      *stream.FrameSlot
	tracker     ConnectionTracker
}

// NewBridge wires a bridge to its sinks. tracker may be nil.
func NewBridge(cfg config.NATSConfig, b *stream.Broadcaster, frames *stream.FrameSlot, tracker ConnectionTracker) *Bridge {
	return &Bridge{
		cfg:         cfg,
		broadcaster: b,
		frames:      frames,
		tracker:     tracker,
	}
}

// Run connects to NATS and pumps messages until the context is canceled.
// Reconnection is handled by the client; the bridge only reports link
// state. Returns nil on graceful shutdown so supervisors do not restart.
func (br *Bridge) Run(ctx context.Context) error {
	nc, err := nats.Connect(br.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(br.cfg.MaxReconnects),
		nats.ReconnectWait(br.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			br.setConnected(false)
			if err != nil {
				logging.Err(err).Msg("ingest bridge disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			br.setConnected(true)
			metrics.IngestReconnects.Inc()
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("ingest bridge reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS %s: %w", br.cfg.URL, err)
	}
	defer nc.Close()

	eventsSub, err := nc.Subscribe(br.cfg.EventsSubject, br.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", br.cfg.EventsSubject, err)
	}
	defer func() { _ = eventsSub.Unsubscribe() }()

	framesSub, err := nc.Subscribe(br.cfg.FramesSubject, br.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", br.cfg.FramesSubject, err)
	}
	defer func() { _ = framesSub.Unsubscribe() }()

	br.setConnected(nc.IsConnected())
	logging.Info().
		Str("url", br.cfg.URL).
		Str("events_subject", br.cfg.EventsSubject).
		Str("frames_subject", br.cfg.FramesSubject).
		Msg("ingest bridge running")

	<-ctx.Done()

	br.setConnected(false)
	if err := nc.Drain(); err != nil {
		logging.Err(err).Msg("ingest bridge drain failed")
	}
	return nil
}

// handleEvent decodes one producer message and publishes the resulting
// events. Malformed payloads are counted and dropped; the subscription
// stays up.
func (br *Bridge) handleEvent(msg *nats.Msg) {
	metrics.IngestMessages.WithLabelValues(msg.Subject).Inc()

	events, err := stream.DecodeWire(msg.Data)
	if err != nil {
		metrics.DecodeFailures.Inc()
		logging.Warn().Err(err).Int("bytes", len(msg.Data)).Msg("dropping malformed event payload")
		return
	}

	for _, ev := range events {
		br.broadcaster.Publish(ev)
	}
}

// handleFrame stores the latest snapshot frame.
func (br *Bridge) handleFrame(msg *nats.Msg) {
	metrics.IngestMessages.WithLabelValues(msg.Subject).Inc()
	br.frames.Write(msg.Data)
}

func (br *Bridge) setConnected(connected bool) {
	if br.tracker != nil {
		br.tracker.SetConnected(connected)
	}
}
