// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/lumigrid/lumigrid/internal/config"
	"github.com/lumigrid/lumigrid/internal/dashboard"
	"github.com/lumigrid/lumigrid/internal/detection"
	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/stream"
	"github.com/lumigrid/lumigrid/internal/websocket"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	m.Run()
}

type testAPI struct {
	handler     http.Handler
	broadcaster *stream.Broadcaster
	frames      *stream.FrameSlot
	store       *dashboard.Store
	reconciler  *detection.Reconciler
}

func newTestAPI(t *testing.T, d detection.Dispatcher) *testAPI {
	t.Helper()

	b := stream.NewBroadcaster(16)
	frames := stream.NewFrameSlot()
	reconciler := detection.NewReconciler(detection.Options{
		WindowSize:          10,
		ConfidenceThreshold: 90,
		Location:            "Test intersection",
	}, d)
	store := dashboard.NewStore(b, reconciler)
	hub := websocket.NewHub(b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		b.Close()
	})

	rt := NewRouter(config.ServerConfig{RateLimitPerMinute: 0}, hub, b, frames, store, reconciler)
	return &testAPI{
		handler:     rt.Setup(),
		broadcaster: b,
		frames:      frames,
		store:       store,
		reconciler:  reconciler,
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		rec := a.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Errorf("GET %s success = false", path)
		}
	}
}

func TestGetDashboard(t *testing.T) {
	a := newTestAPI(t, nil)
	a.store.SetConnected(true)
	a.store.Ingest(stream.NewMetricsEvent(stream.Metrics{ActivePower: 900, SimTime: 3}))

	rec := a.do(t, http.MethodGet, "/api/v1/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Success bool           `json:"success"`
		Data    dashboard.View `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Connected {
		t.Error("dashboard view not connected")
	}
	if len(resp.Data.PowerHistory) != 1 || resp.Data.PowerHistory[0].ActivePower != 900 {
		t.Errorf("power history = %+v", resp.Data.PowerHistory)
	}
}

func TestStreetlightEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)
	a.store.Ingest(stream.NewEntitySnapshotEvent([]stream.EntityState{
		{ID: "sl-01", Brightness: 70, Status: "active"},
	}))

	rec := a.do(t, http.MethodGet, "/api/v1/streetlights", "")
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/streetlights/sl-01", "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/streetlights/sl-99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entity status = %d, want 404", rec.Code)
	}
}

func TestGetSnapshot(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/api/v1/snapshot", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("empty slot status = %d, want 204", rec.Code)
	}

	a.frames.Write([]byte("jpeg-bytes"))
	rec = a.do(t, http.MethodGet, "/api/v1/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAlertEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)
	alert := a.reconciler.OnPrediction("Accident", 96)

	rec := a.do(t, http.MethodGet, "/api/v1/alerts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/alerts/"+alert.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/alerts/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert status = %d, want 404", rec.Code)
	}
}

func TestUpdateAlert(t *testing.T) {
	a := newTestAPI(t, nil)
	alert := a.reconciler.OnPrediction("Accident", 96)

	rec := a.do(t, http.MethodPatch, "/api/v1/alerts/"+alert.ID, `{"status":"resolved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got, _ := a.reconciler.Get(alert.ID)
	if got.Status != detection.StatusResolved {
		t.Errorf("alert status = %q, want resolved", got.Status)
	}

	rec = a.do(t, http.MethodPatch, "/api/v1/alerts/"+alert.ID, `{"status":"escalated"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d, want 400", rec.Code)
	}

	rec = a.do(t, http.MethodPatch, "/api/v1/alerts/unknown", `{"status":"resolved"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert code = %d, want 404", rec.Code)
	}

	rec = a.do(t, http.MethodPatch, "/api/v1/alerts/"+alert.ID, `{bad json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body code = %d, want 400", rec.Code)
	}
}

func TestDispatchAlert(t *testing.T) {
	var gotBody struct {
		AlertID string `json:"alert_id"`
		Action  string `json:"action"`
	}
	responder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode responder request: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer responder.Close()

	a := newTestAPI(t, detection.NewHTTPDispatcher(responder.URL, time.Second))
	alert := a.reconciler.OnPrediction("Accident", 96)
	before := alert.Responders

	rec := a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/dispatch", `{"action":"ambulance"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	// The requested action reaches the responder service verbatim.
	if gotBody.AlertID != alert.ID || gotBody.Action != "ambulance" {
		t.Errorf("responder request = %+v, want %s/ambulance", gotBody, alert.ID)
	}
	got, _ := a.reconciler.Get(alert.ID)
	if got.Status != detection.StatusInvestigating || got.Responders != before+1 {
		t.Errorf("alert after dispatch = %+v", got)
	}

	// Second dispatch conflicts: the alert is already investigating. An
	// empty body is fine, the action just defaults.
	rec = a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/dispatch", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("repeat dispatch status = %d, want 409", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/api/v1/alerts/unknown/dispatch", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert status = %d, want 404", rec.Code)
	}
}

func TestDispatchAlertResponderFailure(t *testing.T) {
	responder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer responder.Close()

	a := newTestAPI(t, detection.NewHTTPDispatcher(responder.URL, time.Second))
	alert := a.reconciler.OnPrediction("Accident", 96)
	before := alert.Responders

	rec := a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/dispatch", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	got, _ := a.reconciler.Get(alert.ID)
	if got.Status != detection.StatusActive {
		t.Errorf("alert status = %q after failed dispatch, want active", got.Status)
	}
	if got.Responders != before+1 {
		t.Errorf("responders = %d after failed dispatch, want %d", got.Responders, before+1)
	}
}

func TestServeSSEStreamsEvents(t *testing.T) {
	a := newTestAPI(t, nil)

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events/sse", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET sse: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	// Wait for the SSE subscription to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for a.broadcaster.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("SSE handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.broadcaster.Publish(stream.NewPredictionEvent("Accident", 95))

	buf := make([]byte, 4096)
	var got string
	for !strings.Contains(got, "data:") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read SSE stream: %v (got %q)", err, got)
		}
		got += string(buf[:n])
	}
	if !strings.Contains(got, `"kind":"prediction"`) {
		t.Errorf("SSE payload missing prediction event: %q", got)
	}
}
