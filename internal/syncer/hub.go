// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// Channel carries envelopes between participants. Every participant,
// including the sender, receives every envelope.
type Channel interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe registers fn for every future envelope. Envelopes are
	// delivered in order on a goroutine owned by the channel; cancel stops
	// delivery and waits for an in-flight call to return.
	Subscribe(fn func(Envelope)) (cancel func())
}

const subscriberBuffer = 100

type subscription struct {
	ch   chan Envelope
	done chan struct{}
}

// Hub is an in-process Channel.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	closed  bool
	dropped func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// OnDrop registers a callback invoked whenever a full subscriber buffer
// forces an envelope to be dropped.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	h.dropped = fn
	h.mu.Unlock()
}

// Publish implements Channel.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return oops.In("syncer").Code("CHANNEL_CLOSED").Errorf("hub is closed")
	}
	for sub := range h.subs {
		select {
		case sub.ch <- env:
		default:
			slog.Warn("envelope dropped: subscriber buffer full",
				"envelope", env.ID,
				"kind", env.Kind,
				"sender", env.SenderID)
			if h.dropped != nil {
				h.dropped()
			}
		}
	}
	return nil
}

// Subscribe implements Channel.
func (h *Hub) Subscribe(fn func(Envelope)) func() {
	sub := &subscription{
		ch:   make(chan Envelope, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.done)
		return func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(sub.done)
		for env := range sub.ch {
			fn(env)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
			<-sub.done
		})
	}
}

// Close stops every subscription. Later publishes fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscription]struct{})
	for sub := range subs {
		close(sub.ch)
	}
	h.mu.Unlock()
	for sub := range subs {
		<-sub.done
	}
}
