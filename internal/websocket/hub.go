// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

// Package websocket bridges the event broadcaster to dashboard WebSocket
// connections. Each connected client holds its own broadcaster
// subscription, so backpressure isolation (bounded mailbox, drop-oldest)
// applies per connection.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/metrics"
	"github.com/lumigrid/lumigrid/internal/stream"
)

// Message types for client communication.
const (
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the envelope sent to and received from dashboard clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub tracks connected clients so shutdown can close them all and the
// client gauge stays accurate. Event fan-out itself happens through each
// client's broadcaster subscription, not through the hub.
type Hub struct {
	broadcaster *stream.Broadcaster

	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub over the given broadcaster.
func NewHub(b *stream.Broadcaster) *Hub {
	return &Hub{
		broadcaster: b,
		clients:     make(map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
	}
}

// RunWithContext processes client lifecycle events until the context is
// canceled, then closes every remaining connection. Designed for suture
// supervision; returns ctx.Err() on shutdown.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown takes priority over lifecycle churn.
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			logging.Info().Int("total_clients", total).Msg("websocket client connected")

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.teardown()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll tears down every connected client during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		delete(h.clients, client)
		client.teardown()
	}
	h.mu.Unlock()

	metrics.WebSocketClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Msg("websocket hub shut down")
}

// unregister hands a client back to the hub without blocking forever if
// the hub is already gone.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-time.After(time.Second):
		// Hub stopped; close directly.
		c.teardown()
	}
}
