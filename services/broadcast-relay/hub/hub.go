// Package hub keeps the set of connected subscribers and fans events out to them.
package hub

import (
	"errors"
	"sync"

	"officehub/utils"
)

var (
	// ErrSubscriberClosed is returned by Send after the subscriber has gone away.
	ErrSubscriberClosed = errors.New("subscriber closed")
	// ErrBufferFull is returned by Send when the subscriber is not draining its queue.
	ErrBufferFull = errors.New("subscriber buffer full")
)

// Subscriber is an opaque handle on one live connection. Send must not block.
type Subscriber interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	logger      *utils.Logger
}

func New(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Hub{
		subscribers: make(map[string]Subscriber),
		logger:      logger,
	}
}

func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info("Subscriber connected", "subscriber_id", sub.ID(), "subscribers", count)
}

// Unregister removes sub and closes it. Unknown or already removed subscribers are ignored.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	current, ok := h.subscribers[sub.ID()]
	if ok && current == sub {
		delete(h.subscribers, sub.ID())
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if !ok || current != sub {
		return
	}

	sub.Close()
	h.logger.Info("Subscriber disconnected", "subscriber_id", sub.ID(), "subscribers", count)
}

// Broadcast hands data to every subscriber connected right now and returns how
// many accepted it. Subscribers that refuse are dropped.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if err := sub.Send(data); err != nil {
			h.logger.Warn("Dropping subscriber", "subscriber_id", sub.ID(), "error", err)
			h.Unregister(sub)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
