// Package plugin provides an extensible plugin system for the rent ledger.
// Plugins can hook into payment, feed, and view lifecycle events.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentSubmitted is called when a tenant submits a payment, before the
// processing delay starts.
type OnPaymentSubmitted interface {
	Plugin
	OnPaymentSubmitted(ctx context.Context, tenantID string, amount types.Money, method string) error
}

// OnPaymentRecorded is called after a payment record is persisted.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, p *payment.Payment) error
}

// OnPaymentFailed is called when a submission ends without a record.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, tenantID, method string, err error) error
}

// ──────────────────────────────────────────────────
// Change feed hooks
// ──────────────────────────────────────────────────

// OnChangePublished is called after a change signal is handed to the feed.
type OnChangePublished interface {
	Plugin
	OnChangePublished(ctx context.Context, sig feed.Signal) error
}

// OnFeedLost is called when a cross-process feed subscription drops.
type OnFeedLost interface {
	Plugin
	OnFeedLost(ctx context.Context, err error) error
}

// ──────────────────────────────────────────────────
// View hooks
// ──────────────────────────────────────────────────

// OnViewRefreshed is called when a view binding applies a fresh snapshot.
type OnViewRefreshed interface {
	Plugin
	OnViewRefreshed(ctx context.Context, viewID, preset string, elapsed time.Duration) error
}

// OnRefreshFailed is called when a view binding's refetch fails.
type OnRefreshFailed interface {
	Plugin
	OnRefreshFailed(ctx context.Context, viewID, preset string, err error) error
}
