// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

func TestHTTPDispatcherSuccess(t *testing.T) {
	var gotBody dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	if err := d.Dispatch(context.Background(), "alert-1", "ambulance"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if gotBody.AlertID != "alert-1" || gotBody.Action != "ambulance" {
		t.Errorf("request body = %+v, want alert-1/ambulance", gotBody)
	}
}

func TestHTTPDispatcherRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"busy"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	if err := d.Dispatch(context.Background(), "alert-1", "dispatch"); err == nil {
		t.Fatal("Dispatch() accepted a non-ok acknowledgement")
	}
}

func TestHTTPDispatcherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	if err := d.Dispatch(context.Background(), "alert-1", "dispatch"); err == nil {
		t.Fatal("Dispatch() accepted a 500 response")
	}
}

func TestHTTPDispatcherBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), "alert-1", "dispatch"); err == nil {
			t.Fatalf("Dispatch() %d succeeded against a failing responder", i)
		}
	}

	err := d.Dispatch(context.Background(), "alert-1", "dispatch")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Dispatch() error = %v, want open circuit", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("responder hit %d times, want 3 (open breaker must fail fast)", got)
	}
}
