// Package binding keeps a derived ledger view in sync with the store.
//
// A Binding fetches the tenant profile and payments on activation, derives
// the rent status, and publishes a View. It then refetches everything on
// every change signal and every identity change. Refetches of one activation
// run one at a time, in order. Results that arrive after the activation was
// torn down are dropped.
package binding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/identity"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/status"
	"github.com/xraph/rentledger/types"
)

// Source reads ledger data. *rentledger.Ledger satisfies it.
type Source interface {
	FetchProfile(ctx context.Context, tenantID string) (*profile.Profile, error)
	FetchPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error)
}

// View is one published snapshot.
type View struct {
	ViewID      id.ViewID  `json:"view_id"`
	Preset      string     `json:"preset"`
	TenantID    string     `json:"tenant_id,omitempty"`
	SignedIn    bool       `json:"signed_in"`
	Period      period.Key `json:"period"`
	PeriodLabel string     `json:"period_label"`

	Profile  *profile.Profile   `json:"profile,omitempty"`
	Rent     types.Money        `json:"rent"`
	Payments []*payment.Payment `json:"payments"`

	// Summary is derived from Payments. Presets that fetch a single period
	// leave LifetimeTotal at zero and their counts cover that period only.
	Summary status.Summary `json:"summary"`

	// Filled by presets with Stats.
	RoomLabel  string     `json:"room_label,omitempty"`
	JoinedAt   *time.Time `json:"joined_at,omitempty"`
	DaysStayed int        `json:"days_stayed,omitempty"`

	// Version increments on every applied refresh of the binding.
	Version     int64     `json:"version"`
	RefreshedAt time.Time `json:"refreshed_at"`

	// LastError is the most recent refresh failure. The rest of the view is
	// the last good snapshot.
	LastError error `json:"-"`
}

// Binding is a live ledger view. The zero value is not usable; call New.
type Binding struct {
	source   Source
	feed     feed.Feed
	ident    identity.Source
	preset   Preset
	logger   *slog.Logger
	plugins  *plugin.Registry
	clock    period.Clock
	currency string
	resource string

	mu        sync.Mutex
	active    bool
	gen       uint64
	sub       *feed.Subscription
	unwatch   func()
	trigger   func()
	cancel    context.CancelFunc
	done      chan struct{}
	view      View
	observers []func(View)
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) { b.logger = logger }
}

// WithPlugins routes view refresh events to r.
func WithPlugins(r *plugin.Registry) Option {
	return func(b *Binding) { b.plugins = r }
}

// WithClock injects the time source for the current period and days stayed.
func WithClock(c period.Clock) Option {
	return func(b *Binding) { b.clock = c }
}

// WithCurrency sets the currency of derived totals.
func WithCurrency(currency string) Option {
	return func(b *Binding) { b.currency = currency }
}

// WithResource overrides the feed resource the binding listens on.
func WithResource(resource string) Option {
	return func(b *Binding) { b.resource = resource }
}

// New creates an inactive Binding. When src also reports Currency, Clock or
// Plugins (as *rentledger.Ledger does) those become defaults for the
// matching options.
func New(src Source, f feed.Feed, ident identity.Source, preset Preset, opts ...Option) *Binding {
	b := &Binding{
		source:   src,
		feed:     f,
		ident:    ident,
		preset:   preset,
		logger:   slog.Default(),
		currency: "inr",
		resource: feed.ResourcePayments,
	}
	if v, ok := src.(interface{ Currency() string }); ok {
		b.currency = v.Currency()
	}
	if v, ok := src.(interface{ Clock() period.Clock }); ok {
		b.clock = v.Clock()
	}
	if v, ok := src.(interface{ Plugins() *plugin.Registry }); ok {
		b.plugins = v.Plugins()
	}
	if v, ok := src.(interface{ Resource() string }); ok {
		b.resource = v.Resource()
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.plugins == nil {
		b.plugins = plugin.NewRegistry().WithLogger(b.logger)
	}
	if b.ident == nil {
		b.ident = identity.Static("")
	}
	return b
}

// Preset returns the binding preset.
func (b *Binding) Preset() Preset { return b.preset }

// Active reports whether the binding is subscribed.
func (b *Binding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// View returns the latest snapshot.
func (b *Binding) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// OnUpdate registers fn to receive every published View. Callbacks run on
// the binding's refresh goroutine and must not call Activate.
func (b *Binding) OnUpdate(fn func(View)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Activate fetches the first snapshot and starts listening. It returns after
// the first refresh has been applied or failed. If ctx ends first the
// activation is torn down again and ctx's error is returned, so a failed
// Activate never needs a matching Deactivate. Activating an active binding
// is a no-op.
func (b *Binding) Activate(ctx context.Context) error {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return nil
	}

	b.gen++
	gen := b.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	kick := make(chan struct{}, 1)
	ready := make(chan struct{})
	done := make(chan struct{})
	trigger := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	sub, err := b.feed.Subscribe(b.resource, func(feed.Signal) { trigger() })
	if err != nil {
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("binding %s: subscribe: %w", b.preset.Name, err)
	}

	b.active = true
	b.sub = sub
	b.unwatch = b.ident.OnChange(trigger)
	b.trigger = trigger
	b.cancel = cancel
	b.done = done
	b.view.ViewID = id.NewViewID()
	b.mu.Unlock()

	go b.run(runCtx, gen, kick, ready, done)

	b.logger.Debug("view binding activated",
		"preset", b.preset.Name,
		"resource", b.resource,
	)

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		b.deactivate(gen)
		return fmt.Errorf("binding %s: activate: %w", b.preset.Name, ctx.Err())
	}
}

// Deactivate stops listening. It releases the feed subscription exactly once
// per activation and is safe to call repeatedly. A refresh still in flight
// finishes in the background and its result is dropped.
func (b *Binding) Deactivate() { b.deactivate(0) }

// deactivate tears down the active activation, or only activation gen when
// gen is non-zero.
func (b *Binding) deactivate(gen uint64) {
	b.mu.Lock()
	if !b.active || (gen != 0 && gen != b.gen) {
		b.mu.Unlock()
		return
	}
	b.active = false
	b.gen++
	sub, unwatch, cancel := b.sub, b.unwatch, b.cancel
	b.sub, b.unwatch, b.trigger, b.cancel = nil, nil, nil, nil
	b.mu.Unlock()

	b.feed.Unsubscribe(sub)
	if unwatch != nil {
		unwatch()
	}
	cancel()

	b.logger.Debug("view binding deactivated", "preset", b.preset.Name)
}

// Done is closed when the refresh goroutine of the latest activation exits.
// It is nil before the first activation.
func (b *Binding) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Refresh asks the active binding to refetch. It does not wait.
func (b *Binding) Refresh() {
	b.mu.Lock()
	trigger := b.trigger
	b.mu.Unlock()
	if trigger != nil {
		trigger()
	}
}

func (b *Binding) run(ctx context.Context, gen uint64, kick <-chan struct{}, ready, done chan struct{}) {
	defer close(done)

	b.refresh(ctx, gen)
	close(ready)

	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			b.refresh(ctx, gen)
		}
	}
}

func (b *Binding) refresh(ctx context.Context, gen uint64) {
	start := time.Now()
	next, err := b.fetch(ctx)

	b.mu.Lock()
	if gen != b.gen || !b.active {
		b.mu.Unlock()
		b.logger.Debug("discarding stale view refresh", "preset", b.preset.Name)
		return
	}

	prev := b.view
	if err != nil {
		if next.TenantID != prev.TenantID {
			// Never show one tenant another tenant's last snapshot.
			next.LastError = err
			b.view = next
		} else {
			b.view.LastError = err
		}
	} else {
		b.view = next
	}
	b.view.ViewID = prev.ViewID
	b.view.Version = prev.Version + 1
	published := b.view
	observers := slices.Clone(b.observers)
	b.mu.Unlock()

	for _, fn := range observers {
		fn(published)
	}

	viewID := published.ViewID.String()
	if err != nil {
		b.logger.Warn("view refresh failed",
			"preset", b.preset.Name,
			"tenant_id", next.TenantID,
			"error", err,
		)
		b.plugins.EmitRefreshFailed(ctx, viewID, b.preset.Name, err)
		return
	}
	b.plugins.EmitViewRefreshed(ctx, viewID, b.preset.Name, time.Since(start))
}

// fetch builds a fresh View. On error the returned View carries only the
// identity fields.
func (b *Binding) fetch(ctx context.Context) (View, error) {
	current := b.clock.Current()
	v := View{
		Preset:      b.preset.Name,
		Period:      current,
		PeriodLabel: current.Label(),
		Rent:        types.Zero(b.currency),
		Summary:     status.Derive(current, b.currency, nil),
		RefreshedAt: b.clock.Now(),
	}

	tenantID, ok := b.ident.CurrentTenant()
	if !ok {
		return v, nil
	}
	v.TenantID = tenantID
	v.SignedIn = true

	prof, err := b.source.FetchProfile(ctx, tenantID)
	if err != nil {
		return v, err
	}
	opts := b.preset.filter(current)
	payments, err := b.source.FetchPayments(ctx, tenantID, opts)
	if err != nil {
		return v, err
	}

	v.Profile = prof
	v.Rent = prof.RentOrZero(b.currency)
	v.Payments = payments
	v.Summary = status.Derive(current, b.currency, payments)
	if opts.PeriodKey != "" {
		// One period's payments say nothing about the lifetime total.
		v.Summary.LifetimeTotal = types.Zero(b.currency)
		v.Summary.Skipped = 0
	}
	if b.preset.Stats {
		v.RoomLabel = prof.RoomLabel()
		if prof != nil {
			v.JoinedAt = prof.JoiningDate
			v.DaysStayed = b.clock.DaysSince(prof.JoiningDate)
		}
	}
	return v, nil
}
