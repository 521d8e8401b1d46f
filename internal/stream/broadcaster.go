// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package stream

import (
	"sync"

	"github.com/lumigrid/lumigrid/internal/logging"
	"github.com/lumigrid/lumigrid/internal/metrics"
)

// DefaultMailboxDepth is the per-subscriber mailbox capacity used when the
// broadcaster is constructed with a non-positive depth.
const DefaultMailboxDepth = 64

// Subscription is one registered consumer of the event stream. Events are
// read from Events(); when the subscription falls behind, the oldest
// undelivered events are discarded so delivery stays bounded.
type Subscription struct {
	id uint64
	ch chan Event
	b  *Broadcaster
}

// Events returns the subscriber's mailbox. The channel is closed when the
// subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close cancels the subscription and closes its mailbox. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.b.Unsubscribe(s)
}

// Broadcaster fans events out to every live subscriber.
//
// DELIVERY INVARIANT: Publish never blocks, regardless of how many
// subscribers exist or how slow they are. Each subscriber gets an
// independent bounded mailbox; overflow evicts the subscriber's oldest
// undelivered event, never the newest. One stalled consumer cannot delay
// the producer or any other consumer.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	depth  int
	closed bool
}

// NewBroadcaster creates a broadcaster whose subscribers each get a mailbox
// of the given depth. Non-positive depths fall back to DefaultMailboxDepth.
func NewBroadcaster(mailboxDepth int) *Broadcaster {
	if mailboxDepth <= 0 {
		mailboxDepth = DefaultMailboxDepth
	}
	return &Broadcaster{
		subs:  make(map[uint64]*Subscription),
		depth: mailboxDepth,
	}
}

// Subscribe registers a new consumer and returns its subscription. The
// subscriber sees only events published after registration; there is no
// replay.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Event, b.depth),
		b:  b,
	}
	b.nextID++

	if b.closed {
		// Late subscriber after shutdown: hand back a closed, empty
		// mailbox so the caller's receive loop exits immediately.
		close(sub.ch)
		return sub
	}

	b.subs[sub.id] = sub
	metrics.StreamSubscribers.Set(float64(len(b.subs)))
	return sub
}

// Unsubscribe removes a subscription and closes its mailbox. Unknown or
// already-removed subscriptions are a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	metrics.StreamSubscribers.Set(float64(len(b.subs)))
}

// Publish delivers ev to every current subscriber without blocking. A full
// mailbox drops its oldest pending event to make room.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	for _, sub := range b.subs {
		b.offer(sub, ev)
	}
}

// offer places ev in the subscriber's mailbox, evicting the oldest pending
// event if the mailbox is full. Called with b.mu held, which keeps the
// close in Unsubscribe ordered against sends here.
func (b *Broadcaster) offer(sub *Subscription, ev Event) {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case sub.ch <- ev:
			return
		default:
		}
		select {
		case <-sub.ch:
			metrics.EventsDropped.Inc()
		default:
			// Consumer drained the mailbox between our two selects;
			// the retry send will succeed.
		}
	}

	// Only reachable with a concurrent competing publisher, which the
	// pipeline does not have. Count the loss rather than spin.
	metrics.EventsDropped.Inc()
	logging.Warn().Uint64("subscriber_id", sub.id).Msg("event discarded after mailbox contention")
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the broadcaster down: all mailboxes are closed and future
// Publish calls become no-ops. Safe to call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	metrics.StreamSubscribers.Set(0)
}
