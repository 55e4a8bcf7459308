package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/profile"
	ledgerstore "github.com/xraph/rentledger/store"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("rentledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("rentledger/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Profile Store ====================

func (s *Store) GetProfile(ctx context.Context, tenantID string) (*profile.Profile, error) {
	m := new(profileModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, rentledger.ErrProfileNotFound
		}
		return nil, err
	}
	return fromProfileModel(m), nil
}

func (s *Store) PutProfile(ctx context.Context, p *profile.Profile) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("%w: profile requires a tenant id", rentledger.ErrInvalidInput)
	}
	p = stampProfile(p, now())

	m := toProfileModel(p)
	_, err := s.pg.NewInsert(m).
		OnConflict("(tenant_id) DO UPDATE").
		Set("monthly_rent = EXCLUDED.monthly_rent").
		Set("currency = EXCLUDED.currency").
		Set("room_number = EXCLUDED.room_number").
		Set("bed_number = EXCLUDED.bed_number").
		Set("joining_date = EXCLUDED.joining_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Payment Store ====================

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.pg.NewSelect(&models).Where("tenant_id = ?", tenantID)

	if opts.PeriodKey != "" {
		q = q.Where("period_key = ?", opts.PeriodKey)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = q.OrderExpr("payment_date DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) InsertPayment(ctx context.Context, d *payment.Draft) (*payment.Payment, error) {
	p := d.Record(id.NewPaymentID(), now())
	if _, err := s.pg.NewInsert(toPaymentModel(p)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", rentledger.ErrDuplicateTransaction, d.TransactionRef)
		}
		return nil, err
	}
	return p, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLSTATE 23505 as surfaced in the driver error text.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// stampProfile returns a copy of p with its timestamps set for a write at t.
func stampProfile(p *profile.Profile, t time.Time) *profile.Profile {
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = t
	}
	cp.UpdatedAt = t
	return &cp
}

func now() time.Time {
	return time.Now().UTC()
}
