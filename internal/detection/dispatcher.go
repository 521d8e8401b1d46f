// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/lumigrid/lumigrid/internal/logging"
)

const maxDispatchBodySize = 64 * 1024

// dispatchRequest is the payload sent to the responder service.
type dispatchRequest struct {
	AlertID string `json:"alert_id"`
	Action  string `json:"action"`
}

// dispatchResponse is the acknowledgement expected from the responder
// service.
type dispatchResponse struct {
	Status string `json:"status"`
}

// HTTPDispatcher calls an external responder service over HTTP. A circuit
// breaker guards the endpoint so a dead responder fails fast instead of
// tying up dashboard requests for the full timeout on every click.
type HTTPDispatcher struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPDispatcher builds a dispatcher for the responder endpoint.
// A non-positive timeout defaults to 5s.
func NewHTTPDispatcher(url string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "responder-dispatch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("dispatch circuit breaker state change")
		},
	})

	return &HTTPDispatcher{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// Dispatch posts a responder request for the alert and waits for the
// acknowledgement.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, alertID, action string) error {
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.post(ctx, alertID, action)
	})
	return err
}

func (d *HTTPDispatcher) post(ctx context.Context, alertID, action string) error {
	body, err := json.Marshal(dispatchRequest{
		AlertID: alertID,
		Action:  action,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("responder request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDispatchBodySize))
	if err != nil {
		return fmt.Errorf("read responder response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("responder returned status %d", resp.StatusCode)
	}

	var ack dispatchResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("decode responder response: %w", err)
	}
	if ack.Status != "ok" {
		return fmt.Errorf("responder rejected dispatch: status %q", ack.Status)
	}

	return nil
}
