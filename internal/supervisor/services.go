// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lumigrid/lumigrid/internal/dashboard"
	"github.com/lumigrid/lumigrid/internal/ingest"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/websocket"
)

// HubService supervises the WebSocket hub.
type HubService struct {
	Hub *websocket.Hub
}

func (s *HubService) Serve(ctx context.Context) error {
	return s.Hub.RunWithContext(ctx)
}

func (s *HubService) String() string { return "websocket-hub" }

// StoreService supervises the dashboard store's stream consumer.
type StoreService struct {
	Store *dashboard.Store
}

func (s *StoreService) Serve(ctx context.Context) error {
	return s.Store.Run(ctx)
}

func (s *StoreService) String() string { return "dashboard-store" }

// BridgeService supervises the NATS ingest bridge.
type BridgeService struct {
	Bridge *ingest.Bridge
}

func (s *BridgeService) Serve(ctx context.Context) error {
	return s.Bridge.Run(ctx)
}

func (s *BridgeService) String() string { return "ingest-bridge" }

// SimulatorService supervises the telemetry simulator.
type SimulatorService struct {
	Simulator *ingest.Simulator
}

func (s *SimulatorService) Serve(ctx context.Context) error {
	return s.Simulator.Run(ctx)
}

func (s *SimulatorService) String() string { return "telemetry-simulator" }

// HTTPService supervises the HTTP API server with graceful shutdown.
type HTTPService struct {
	Server          *http.Server
	ShutdownTimeout time.Duration
}

func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.Server.Addr).Msg("http server listening")
		errCh <- s.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		timeout := s.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			logging.Err(err).Msg("http server shutdown failed")
			return err
		}
		logging.Info().Msg("http server stopped")
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }
