// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package stream

import (
	"io"
	"testing"
	"time"

	"github.com/lumigrid/lumigrid/internal/logging"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	m.Run()
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(8)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	ev := NewPredictionEvent("Accident", 95)
	b.Publish(ev)

	for i, sub := range []*Subscription{s1, s2} {
		select {
		case got := <-sub.Events():
			if got.Kind != KindPrediction {
				t.Errorf("subscriber %d: Kind = %q, want %q", i, got.Kind, KindPrediction)
			}
			if got.Prediction == nil || got.Prediction.Class != "Accident" {
				t.Errorf("subscriber %d: unexpected prediction %+v", i, got.Prediction)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestBroadcasterPublishNeverBlocks(t *testing.T) {
	b := NewBroadcaster(4)
	defer b.Close()

	sub := b.Subscribe()
	_ = sub // never reads

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(NewMetricsEvent(Metrics{SimTime: float64(i)}))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full mailbox")
	}
}

func TestBroadcasterDropsOldestOnOverflow(t *testing.T) {
	b := NewBroadcaster(3)
	defer b.Close()

	sub := b.Subscribe()

	// Five publishes into a depth-3 mailbox: the two oldest must go.
	for i := 1; i <= 5; i++ {
		b.Publish(NewMetricsEvent(Metrics{SimTime: float64(i)}))
	}

	want := []float64{3, 4, 5}
	for _, w := range want {
		select {
		case got := <-sub.Events():
			if got.Metrics == nil || got.Metrics.SimTime != w {
				t.Errorf("received sim_time %v, want %v", got.Metrics, w)
			}
		default:
			t.Fatalf("mailbox exhausted before sim_time %v", w)
		}
	}

	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestBroadcasterSlowSubscriberDoesNotStarvePeers(t *testing.T) {
	b := NewBroadcaster(2)
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()
	_ = slow // never reads

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.Events() {
			received++
			if received == 20 {
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		b.Publish(NewMetricsEvent(Metrics{SimTime: float64(i)}))
		// Give the fast consumer a chance to drain so nothing drops.
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fast subscriber received %d of 20 events", received)
	}
}

func TestBroadcasterUnsubscribeClosesMailbox(t *testing.T) {
	b := NewBroadcaster(4)
	defer b.Close()

	sub := b.Subscribe()
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() after Close = %d, want 0", got)
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("received event on cancelled subscription")
		}
	case <-time.After(time.Second):
		t.Fatal("mailbox not closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(NewPredictionEvent("Car", 50))
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Fatal("mailbox still open after broadcaster Close")
	}

	// Publish after Close is a no-op.
	b.Publish(NewPredictionEvent("Car", 50))

	late := b.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatal("late subscription after Close received an event")
	}
}
