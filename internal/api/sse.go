// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
)

// sseHeartbeatInterval keeps idle SSE connections alive through proxies.
const sseHeartbeatInterval = 15 * time.Second

// serveSSE streams events as Server-Sent Events for clients that cannot
// use WebSockets. Each connection gets its own broadcaster subscription,
// so a stalled client drops its own oldest events and nothing else.
func (rt *Router) serveSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "unsupported", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := rt.broadcaster.Subscribe()
	defer sub.Close()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-sub.Events():
			if !open {
				return
			}
			data, err := stream.Marshal(ev)
			if err != nil {
				logging.Err(err).Msg("failed to marshal SSE event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
