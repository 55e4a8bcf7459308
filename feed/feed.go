// Package feed provides the content-free change notification channel that
// keeps independent ledger views in sync.
//
// A Signal says only that some record of a named resource changed. The feed
// is store-wide: subscribers to "payments" hear about every tenant's writes
// and are expected to refetch what they need. Delivery may coalesce bursts,
// but at least one callback always runs after the last change of a burst, and
// callbacks of a single subscription never overlap.
package feed

import (
	"context"
	"errors"
	"time"
)

// ResourcePayments is the resource name the ledger publishes on.
const ResourcePayments = "payments"

// ErrClosed is returned by a closed Hub.
var ErrClosed = errors.New("feed: closed")

// Op is the kind of write that triggered a Signal.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Signal is one change notification. TenantID is informational; the feed
// makes no scoping guarantee and subscribers must not filter on it.
type Signal struct {
	Resource string    `json:"resource"`
	Op       Op        `json:"op"`
	TenantID string    `json:"tenant_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher emits change signals.
type Publisher interface {
	Publish(ctx context.Context, sig Signal) error
}

// Feed delivers change signals for a resource to subscribers.
type Feed interface {
	Subscribe(resource string, fn func(Signal)) (*Subscription, error)
	Unsubscribe(sub *Subscription)
}

// PublisherFunc is an adapter to use a plain function as a Publisher.
type PublisherFunc func(ctx context.Context, sig Signal) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, sig Signal) error {
	return f(ctx, sig)
}
