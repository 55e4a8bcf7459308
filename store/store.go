package store

import (
	"context"

	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/profile"
)

// Store is the unified storage interface for rentledger records. Payments
// are append-only: there is no update or delete.
type Store interface {
	// Profile methods
	GetProfile(ctx context.Context, tenantID string) (*profile.Profile, error)
	PutProfile(ctx context.Context, p *profile.Profile) error

	// Payment methods
	ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error)
	InsertPayment(ctx context.Context, d *payment.Draft) (*payment.Payment, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
