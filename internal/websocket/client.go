// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// clientIDCounter assigns unique IDs for log correlation.
var clientIDCounter atomic.Uint64

// Client couples one WebSocket connection to one broadcaster subscription.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	sub  *stream.Subscription

	// control carries pong replies from the read pump to the write pump.
	control chan Message

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection and subscribes it to the event
// stream.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		sub:     hub.broadcaster.Subscribe(),
		control: make(chan Message, 8),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Start launches the read and write pumps. The caller must have sent the
// client through hub.Register first.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// teardown cancels the subscription and closes the socket. The write pump
// exits when the subscription channel closes. Safe to call repeatedly.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.sub.Close()
		_ = c.conn.Close()
	})
}

// readPump consumes client messages. Dashboards only ever send pings; all
// other payloads are ignored.
func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Err(err).Uint64("client_id", c.id).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		if msg.Type == MessageTypePing {
			select {
			case c.control <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump forwards subscribed events and control replies to the socket
// and keeps the connection alive with protocol pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				// Subscription canceled: say goodbye properly.
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(Message{Type: MessageTypeEvent, Data: ev}); err != nil {
				logging.Err(err).Uint64("client_id", c.id).Msg("failed to write event")
				return
			}

		case msg := <-c.control:
			if err := c.writeJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeJSON(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}
