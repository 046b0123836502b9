// Package events fans pointer-change notifications out to every subscriber of
// a storage namespace, locally and, with a bridge, across instances.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindSet   = "set"
	KindClear = "clear"
)

// Event describes one pointer mutation.
type Event struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	ScenarioID string    `json:"scenarioId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	At         time.Time `json:"at"`
	Origin     string    `json:"origin,omitempty"`
}

// Publisher is what stores depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Bridge carries events between instances.
type Bridge interface {
	Publish(ctx context.Context, ev Event) error
	// Run delivers remote events until ctx is done.
	Run(ctx context.Context, deliver func(Event)) error
}

const defaultBuffer = 16

// Hub is an in-process pub/sub keyed by namespace.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	bridge Bridge
	origin string
	logger *slog.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub. bridge may be nil for single-instance deployments.
func NewHub(bridge Bridge, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		bridge: bridge,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Subscription receives events for one namespace until closed.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	ns   string
	hub  *Hub
	once sync.Once
}

// Subscribe registers a subscriber for namespace.
func (h *Hub) Subscribe(namespace string) *Subscription {
	ch := make(chan Event, defaultBuffer)
	sub := &Subscription{C: ch, ch: ch, ns: namespace, hub: h}

	h.mu.Lock()
	if _, ok := h.subs[namespace]; !ok {
		h.subs[namespace] = make(map[*Subscription]struct{})
	}
	h.subs[namespace][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.ns]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.ns)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Publish delivers ev locally and forwards it over the bridge.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.Origin = h.origin

	h.deliver(ev)

	if h.bridge != nil {
		if err := h.bridge.Publish(ctx, ev); err != nil {
			h.logger.Warn("failed to forward pointer event", "namespace", ev.Namespace, "error", err)
		}
	}
}

// deliver never blocks; a subscriber that is not keeping up loses the event.
func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.Namespace] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("subscriber buffer full, dropping pointer event", "namespace", ev.Namespace, "event_id", ev.ID)
		}
	}
}

// Run pumps remote events into local subscribers until ctx is done.
// Without a bridge it just waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.bridge == nil {
		<-ctx.Done()
		return nil
	}
	err := h.bridge.Run(ctx, func(ev Event) {
		if ev.Origin == h.origin {
			return
		}
		h.deliver(ev)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// SubscriberCount returns the number of live subscriptions for namespace.
func (h *Hub) SubscriberCount(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[namespace])
}
