// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package api exposes the dashboard HTTP surface: REST endpoints for
// state and alert actions, the WebSocket and SSE event feeds, the
// snapshot frame, and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumigrid/lumigrid/internal/config"
	"github.com/lumigrid/lumigrid/internal/dashboard"
	"github.com/lumigrid/lumigrid/internal/detection"
	"github.com/lumigrid/lumigrid/internal/metrics"
	"github.com/lumigrid/lumigrid/internal/stream"
	"github.com/lumigrid/lumigrid/internal/websocket"
)

// Router wires HTTP routes to the pipeline components.
type Router struct {
	cfg         config.ServerConfig
	hub         *websocket.Hub
	broadcaster *stream.Broadcaster
	frames      *stream.FrameSlot
	store       *dashboard.Store
	reconciler  *detection.Reconciler
	started     time.Time
}

// NewRouter builds a router over the pipeline components.
func NewRouter(
	cfg config.ServerConfig,
	hub *websocket.Hub,
	b *stream.Broadcaster,
	frames *stream.FrameSlot,
	store *dashboard.Store,
	reconciler *detection.Reconciler,
) *Router {
	return &Router{
		cfg:         cfg,
		hub:         hub,
		broadcaster: b,
		frames:      frames,
		store:       store,
		reconciler:  reconciler,
		started:     time.Now().UTC(),
	}
}

// Setup returns the configured HTTP handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.corsOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		// Permissive limit: monitors poll these frequently.
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", rt.healthLive)
		r.Get("/ready", rt.healthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(rt.cfg.RateLimitPerMinute, time.Minute))
		}
		r.Use(rt.prometheusMiddleware)

		r.Get("/dashboard", rt.getDashboard)
		r.Get("/streetlights", rt.listStreetlights)
		r.Get("/streetlights/{id}", rt.getStreetlight)
		r.Get("/snapshot", rt.getSnapshot)

		r.Get("/alerts", rt.listAlerts)
		r.Get("/alerts/{id}", rt.getAlert)
		r.Patch("/alerts/{id}", rt.updateAlert)
		r.Post("/alerts/{id}/dispatch", rt.dispatchAlert)

		r.Get("/events", rt.serveWebSocket)
		r.Get("/events/sse", rt.serveSSE)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// corsOrigins returns the configured origins, defaulting to allow-all.
func (rt *Router) corsOrigins() []string {
	if len(rt.cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return rt.cfg.CORSAllowedOrigins
}

// prometheusMiddleware records request counts and latency per route
// pattern, keeping label cardinality bounded regardless of path params.
func (rt *Router) prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, pattern, ww.Status(), time.Since(start))
	})
}

// serveWebSocket upgrades the connection and hands it to the hub.
func (rt *Router) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(rt.hub, w, r)
}
