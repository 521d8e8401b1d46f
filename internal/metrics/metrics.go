// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package metrics provides Prometheus instrumentation for Lumigrid.
//
// Collectors cover the event pipeline (publish/broadcast/drop counts),
// the decode boundary, the snapshot frame slot, alert lifecycle, and the
// HTTP API. Everything is registered through promauto and served by the
// /metrics endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_published_total",
			Help: "Total number of events published to the broadcaster",
		},
		[]string{"kind"}, // "prediction", "entity_snapshot", "metrics"
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_events_dropped_total",
			Help: "Total number of events dropped from full subscriber mailboxes (drop-oldest)",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Current number of registered broadcaster subscribers",
		},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_decode_failures_total",
			Help: "Total number of malformed event payloads dropped at the decode boundary",
		},
	)

	// Snapshot frame slot metrics
	FrameWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_frame_writes_total",
			Help: "Total number of frames written to the snapshot slot",
		},
	)

	FrameReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_frame_reads_total",
			Help: "Total number of frame reads served (including empty placeholder reads)",
		},
	)

	// Alert lifecycle metrics
	AlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts created by the reconciler",
		},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Total number of qualifying predictions suppressed by the dedup window",
		},
	)

	DispatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dispatch_requests_total",
			Help: "Total number of responder dispatch requests by outcome",
		},
		[]string{"outcome"}, // "ok", "failed", "rejected"
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_dispatch_duration_seconds",
			Help:    "Duration of responder dispatch calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	// Ingest boundary metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of messages received on the ingest boundary",
		},
		[]string{"subject"},
	)

	IngestReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_reconnects_total",
			Help: "Total number of NATS reconnects observed by the ingest bridge",
		},
	)
)

// RecordAPIRequest records a completed API request with its status code
// and duration. Intended to be called from HTTP middleware.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDispatch records a responder dispatch call outcome and duration.
func RecordDispatch(outcome string, duration time.Duration) {
	DispatchRequests.WithLabelValues(outcome).Inc()
	DispatchDuration.Observe(duration.Seconds())
}
