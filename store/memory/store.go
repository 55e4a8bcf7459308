// Package memory provides an in-process store.Store for tests and the CLI.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	clock period.Clock

	// Profile storage, keyed by tenant
	profiles map[string]*profile.Profile

	// Payment storage, keyed by payment ID, with a unique transaction index
	payments     map[string]*payment.Payment
	transactions map[string]string

	closed bool

	failMu   sync.Mutex
	failNext error
}

// Option configures a memory Store.
type Option func(*Store)

// WithClock sets the clock used to stamp PaymentDate.
func WithClock(c period.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func New(opts ...Option) *Store {
	s := &Store{
		profiles:     make(map[string]*profile.Profile),
		payments:     make(map[string]*payment.Payment),
		transactions: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes the next store operation return err instead of running.
func (s *Store) Fail(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failNext = err
}

func (s *Store) takeFailure() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

// Profile Store implementation

func (s *Store) GetProfile(_ context.Context, tenantID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, rentledger.ErrStoreClosed
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	if p, ok := s.profiles[tenantID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, rentledger.ErrProfileNotFound
}

func (s *Store) PutProfile(_ context.Context, p *profile.Profile) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("%w: profile requires a tenant id", rentledger.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return rentledger.ErrStoreClosed
	}
	cp := *p
	if existing, ok := s.profiles[p.TenantID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.TenantID] = &cp
	return nil
}

// Payment Store implementation

func (s *Store) ListPayments(_ context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, rentledger.ErrStoreClosed
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var result []*payment.Payment
	for _, p := range s.payments {
		if p.TenantID != tenantID || !opts.Matches(p) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaymentDate.Equal(result[j].PaymentDate) {
			return result[i].PaymentDate.After(result[j].PaymentDate)
		}
		return result[i].ID.String() > result[j].ID.String()
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) InsertPayment(_ context.Context, d *payment.Draft) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, rentledger.ErrStoreClosed
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	ref := d.TransactionRef.String()
	if _, exists := s.transactions[ref]; exists {
		return nil, fmt.Errorf("%w: %s", rentledger.ErrDuplicateTransaction, ref)
	}

	p := d.Record(id.NewPaymentID(), s.clock.Now().UTC())
	s.payments[p.ID.String()] = p
	s.transactions[ref] = p.ID.String()

	cp := *p
	return &cp, nil
}

// Len returns the number of stored payments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return rentledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
