// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS server so a single binary can
// host both the producers and the dashboard without an external broker.
// JetStream is off: the event stream is fire-and-forget by design.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server listening
// at the host and port of clientURL. Fails if the server is not accepting
// connections within 30 seconds.
func NewEmbeddedServer(clientURL string) (*EmbeddedServer, error) {
	host, port, err := splitNATSURL(clientURL)
	if err != nil {
		return nil, err
	}

	if port == 0 {
		// Port 0 in the URL selects an ephemeral port.
		port = server.RANDOM_PORT
	}

	opts := &server.Options{
		ServerName: "lumigrid-events",
		Host:       host,
		Port:       port,
		JetStream:  false,
		NoLog:      false,
		MaxPayload: 8 * 1024 * 1024, // room for JPEG frames
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// IsRunning reports server health.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// Shutdown stops the server, waiting for completion unless the context
// expires first.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// splitNATSURL extracts host and port from a nats:// URL.
func splitNATSURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("parse NATS URL %q: %w", raw, err)
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}

	port := 4222
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("parse NATS port %q: %w", p, err)
		}
	}

	return host, port, nil
}
