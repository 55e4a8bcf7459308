package rentledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/store"
)

// DefaultCurrency is the ledger currency when none is configured.
const DefaultCurrency = "inr"

// Ledger is the rent ledger engine. It fronts the store, normalizes its
// errors, and announces every accepted write on the change feed.
type Ledger struct {
	store     store.Store
	publisher feed.Publisher
	plugins   *plugin.Registry
	logger    *slog.Logger
	clock     period.Clock

	currency string
	resource string

	mu      sync.Mutex
	started bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		currency: DefaultCurrency,
		resource: feed.ResourcePayments,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPublisher sets where change signals go after a write. Without one the
// ledger records payments but no view refreshes automatically.
func WithPublisher(p feed.Publisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		l.currency = currency
	}
}

// WithResource overrides the feed resource name payments are announced on.
func WithResource(resource string) Option {
	return func(l *Ledger) {
		l.resource = resource
	}
}

// WithClock injects the time source used for period keys.
func WithClock(c period.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}

	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("rentledger: migrate: %w", err)
	}

	l.plugins.EmitInit(ctx, l)
	l.started = true

	l.logger.Info("rent ledger started",
		"currency", l.currency,
		"resource", l.resource,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Ledger and closes the store.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)
	l.started = false

	return l.store.Close()
}

// Plugins returns the plugin registry so collaborators can emit on it.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Logger returns the ledger logger.
func (l *Ledger) Logger() *slog.Logger { return l.logger }

// Currency returns the ledger currency.
func (l *Ledger) Currency() string { return l.currency }

// Clock returns the ledger time source.
func (l *Ledger) Clock() period.Clock { return l.clock }

// Resource returns the feed resource payments are announced on.
func (l *Ledger) Resource() string { return l.resource }

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// FetchProfile returns the tenant's rent profile, or nil when the tenant has
// none yet.
func (l *Ledger) FetchProfile(ctx context.Context, tenantID string) (*profile.Profile, error) {
	if tenantID == "" {
		return nil, ErrNotAuthenticated
	}

	p, err := l.store.GetProfile(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: profile %s: %w", ErrFetchFailed, tenantID, err)
	}
	return p, nil
}

// FetchPayments returns the tenant's payments matching opts, newest first.
func (l *Ledger) FetchPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	if tenantID == "" {
		return nil, ErrNotAuthenticated
	}
	if opts.PeriodKey != "" {
		if _, err := period.Parse(opts.PeriodKey); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPeriodKey, err)
		}
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, opts.Status)
	}

	payments, err := l.store.ListPayments(ctx, tenantID, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: payments %s: %w", ErrFetchFailed, tenantID, err)
	}
	return payments, nil
}

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// Insert records a payment and announces it on the change feed. The writer's
// own views are notified like any other subscriber.
func (l *Ledger) Insert(ctx context.Context, d *payment.Draft) (*payment.Payment, error) {
	if err := l.validateDraft(d); err != nil {
		return nil, err
	}

	start := time.Now()
	p, err := l.store.InsertPayment(ctx, d)
	if err != nil {
		var rejected *WriteRejectedError
		if !errors.As(err, &rejected) {
			rejected = RejectWrite(err)
		}
		l.logger.Warn("payment insert rejected",
			"tenant_id", d.TenantID,
			"transaction_ref", d.TransactionRef.String(),
			"error", err,
		)
		return nil, rejected
	}

	l.logger.Info("payment recorded",
		"payment_id", p.ID.String(),
		"tenant_id", p.TenantID,
		"amount", p.Amount.String(),
		"period_key", p.PeriodKey.String(),
		"status", string(p.Status),
		"elapsed", time.Since(start),
	)

	l.plugins.EmitPaymentRecorded(ctx, p)
	l.announce(ctx, feed.OpInsert, p.TenantID)

	return p, nil
}

func (l *Ledger) announce(ctx context.Context, op feed.Op, tenantID string) {
	if l.publisher == nil {
		return
	}
	// The write has committed; a caller giving up now must not drop the signal.
	ctx = context.WithoutCancel(ctx)

	sig := feed.Signal{
		Resource: l.resource,
		Op:       op,
		TenantID: tenantID,
		At:       l.clock.Now().UTC(),
	}
	if err := l.publisher.Publish(ctx, sig); err != nil {
		// The record is already durable; only live views miss this change.
		l.logger.Warn("change signal not published",
			"resource", sig.Resource,
			"error", err,
		)
		return
	}
	l.plugins.EmitChangePublished(ctx, sig)
}

func (l *Ledger) validateDraft(d *payment.Draft) error {
	if d == nil {
		return ValidationError{Field: "draft", Message: "is required"}
	}
	if d.TenantID == "" {
		return ErrNotAuthenticated
	}
	if !d.Amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}
	if d.Method == "" {
		return ValidationError{Field: "payment_method", Message: "is required"}
	}
	if _, err := period.Parse(string(d.PeriodKey)); err != nil {
		return ValidationError{Field: "period_key", Message: err.Error()}
	}
	if !d.Status.Valid() {
		return ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", d.Status)}
	}
	if d.TransactionRef.IsNil() {
		return ValidationError{Field: "transaction_reference", Message: "is required"}
	}
	return nil
}
