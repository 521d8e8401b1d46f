// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Command server runs the Lumigrid dashboard backend: it ingests
// streetlight telemetry and accident predictions, maintains the dashboard
// state, and serves the REST, WebSocket, and SSE API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumigrid/lumigrid/internal/api"
	"github.com/lumigrid/lumigrid/internal/config"
	"github.com/lumigrid/lumigrid/internal/dashboard"
	"github.com/lumigrid/lumigrid/internal/detection"
	"github.com/lumigrid/lumigrid/internal/ingest"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
	"github.com/lumigrid/lumigrid/internal/supervisor"
	"github.com/lumigrid/lumigrid/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("simulator_enabled", cfg.Simulator.Enabled).
		Str("addr", cfg.Server.Addr()).
		Msg("starting lumigrid server")

	// Core pipeline components.
	broadcaster := stream.NewBroadcaster(cfg.Stream.MailboxDepth)
	frames := stream.NewFrameSlot()

	var dispatcher detection.Dispatcher
	if cfg.Responder.URL != "" {
		dispatcher = detection.NewHTTPDispatcher(cfg.Responder.URL, cfg.Responder.Timeout)
	} else {
		logging.Warn().Msg("no responder URL configured; alert dispatch will fail")
	}

	reconciler := detection.NewReconciler(detection.Options{
		WindowSize:          cfg.Alerts.WindowSize,
		ConfidenceThreshold: cfg.Alerts.ConfidenceThreshold,
		Location:            cfg.Alerts.Location,
	}, dispatcher)

	store := dashboard.NewStore(broadcaster, reconciler)
	hub := websocket.NewHub(broadcaster)

	// Optional embedded NATS server.
	natsURL := cfg.NATS.URL
	var embedded *ingest.EmbeddedServer
	if cfg.NATS.Enabled && cfg.NATS.EmbeddedServer {
		embedded, err = ingest.NewEmbeddedServer(cfg.NATS.URL)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start embedded NATS server")
		}
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("embedded NATS server started")
	}

	// Supervisor tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddPipelineService(&supervisor.HubService{Hub: hub})
	tree.AddPipelineService(&supervisor.StoreService{Store: store})

	if cfg.NATS.Enabled {
		bridgeCfg := cfg.NATS
		bridgeCfg.URL = natsURL
		bridge := ingest.NewBridge(bridgeCfg, broadcaster, frames, store)
		tree.AddPipelineService(&supervisor.BridgeService{Bridge: bridge})
	}
	if cfg.Simulator.Enabled {
		sim := ingest.NewSimulator(cfg.Simulator, broadcaster, store)
		tree.AddPipelineService(&supervisor.SimulatorService{Simulator: sim})
	}
	if !cfg.NATS.Enabled && !cfg.Simulator.Enabled {
		logging.Warn().Msg("no event source configured; dashboard will stay empty")
	}

	router := api.NewRouter(cfg.Server, hub, broadcaster, frames, store, reconciler)
	// WriteTimeout stays zero: the SSE and WebSocket endpoints hold
	// their connections open indefinitely.
	server := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     router.Setup(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	tree.AddAPIService(&supervisor.HTTPService{
		Server:          server,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	// Run until a shutdown signal arrives.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	broadcaster.Close()

	if embedded != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		if err := embedded.Shutdown(shutdownCtx); err != nil {
			logging.Err(err).Msg("embedded NATS shutdown failed")
		}
		stop()
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("server stopped")
}
