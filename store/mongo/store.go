package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/profile"
	ledgerstore "github.com/xraph/rentledger/store"
)

// Collection name constants.
const (
	colProfiles = "rentledger_profiles"
	colPayments = "rentledger_payments"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all rentledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("rentledger/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m profileModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, rentledger.ErrProfileNotFound
		}
		return nil, fmt.Errorf("rentledger/mongo: get profile: %w", err)
	}
	return fromProfileModel(&m), nil
}

func (s *Store) PutProfile(ctx context.Context, p *profile.Profile) error {
	if p == nil || p.TenantID == "" {
		return fmt.Errorf("%w: profile requires a tenant id", rentledger.ErrInvalidInput)
	}
	p = stampProfile(p, now())
	m := toProfileModel(p)

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.TenantID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"monthly_rent": m.MonthlyRent,
				"currency":     m.Currency,
				"room_number":  m.RoomNumber,
				"bed_number":   m.BedNumber,
				"joining_date": m.JoiningDate,
				"updated_at":   m.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": m.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rentledger/mongo: put profile: %w", err)
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{"tenant_id": tenantID}
	if opts.PeriodKey != "" {
		filter["period_key"] = opts.PeriodKey
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "payment_date", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("rentledger/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) InsertPayment(ctx context.Context, d *payment.Draft) (*payment.Payment, error) {
	p := d.Record(id.NewPaymentID(), now())
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s", rentledger.ErrDuplicateTransaction, d.TransactionRef)
		}
		return nil, fmt.Errorf("rentledger/mongo: insert payment: %w", err)
	}
	return p, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
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

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProfiles: {},
		colPayments: {
			{
				Keys:    bson.D{{Key: "transaction_ref", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "period_key", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "payment_date", Value: -1}}},
		},
	}
}
