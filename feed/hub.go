package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/rentledger/id"
)

// compile-time interface checks
var (
	_ Feed      = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// Hub is an in-process fan-out feed. Each subscription owns a delivery
// goroutine fed by a one-slot mailbox, so a slow subscriber coalesces
// signals instead of blocking publishers or other subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription // resource -> subscription id -> sub
	closed bool
	logger *slog.Logger

	published atomic.Int64
	delivered atomic.Int64
	coalesced atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[string]map[string]*Subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID       id.SubscriptionID
	Resource string

	fn      func(Signal)
	mailbox chan Signal
	done    chan struct{}
	once    sync.Once
	hub     *Hub
}

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe registers fn for signals on resource.
func (h *Hub) Subscribe(resource string, fn func(Signal)) (*Subscription, error) {
	if resource == "" {
		return nil, fmt.Errorf("feed: subscribe: empty resource")
	}
	if fn == nil {
		return nil, fmt.Errorf("feed: subscribe %s: nil callback", resource)
	}

	sub := &Subscription{
		ID:       id.NewSubscriptionID(),
		Resource: resource,
		fn:       fn,
		mailbox:  make(chan Signal, 1),
		done:     make(chan struct{}),
		hub:      h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[resource] == nil {
		h.subs[resource] = make(map[string]*Subscription)
	}
	h.subs[resource][sub.ID.String()] = sub
	h.mu.Unlock()

	go sub.run()

	h.logger.Debug("feed subscription added",
		"subscription", sub.ID.String(),
		"resource", resource,
	)
	return sub, nil
}

// Unsubscribe stops delivery to sub. It is safe to call more than once and
// with a nil handle.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		h.mu.Lock()
		if byID, ok := h.subs[sub.Resource]; ok {
			delete(byID, sub.ID.String())
			if len(byID) == 0 {
				delete(h.subs, sub.Resource)
			}
		}
		h.mu.Unlock()
		close(sub.done)

		h.logger.Debug("feed subscription removed",
			"subscription", sub.ID.String(),
			"resource", sub.Resource,
		)
	})
}

// Publish enqueues sig for every current subscriber of sig.Resource.
func (h *Hub) Publish(_ context.Context, sig Signal) error {
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*Subscription, 0, len(h.subs[sig.Resource]))
	for _, sub := range h.subs[sig.Resource] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	h.published.Add(1)
	for _, sub := range targets {
		select {
		case sub.mailbox <- sig:
		default:
			// A delivery is already pending and will run after this change.
			h.coalesced.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for resource.
func (h *Hub) Subscribers(resource string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[resource])
}

// Close unsubscribes everyone. Later Publish and Subscribe calls fail with
// ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*Subscription
	for _, byID := range h.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		h.Unsubscribe(sub)
	}
	return nil
}

// HubStats is a point-in-time view of hub counters.
type HubStats struct {
	Published int64
	Delivered int64
	Coalesced int64
}

// Stats returns the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Coalesced: h.coalesced.Load(),
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.mailbox:
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(sig)
		}
	}
}

func (s *Subscription) deliver(sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.logger.Error("feed subscriber panicked",
				"subscription", s.ID.String(),
				"resource", s.Resource,
				"panic", r,
			)
		}
	}()
	s.fn(sig)
	s.hub.delivered.Add(1)
}
