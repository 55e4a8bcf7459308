package binding_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/binding"
	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/identity"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
	"github.com/xraph/rentledger/workflow"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

const tenant = "tenant-1"

type fixture struct {
	store  *memory.Store
	hub    *feed.Hub
	ledger *rentledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New(memory.WithClock(clock))
	hub := feed.NewHub()
	l := rentledger.New(s, rentledger.WithPublisher(hub), rentledger.WithClock(clock))
	t.Cleanup(func() { _ = hub.Close() })

	rent := types.INR(500000)
	joined := time.Date(2026, 10, 4, 18, 0, 0, 0, time.UTC)
	if err := s.PutProfile(ctx, &profile.Profile{
		TenantID:    tenant,
		MonthlyRent: &rent,
		RoomNumber:  "204",
		JoiningDate: &joined,
	}); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	return &fixture{store: s, hub: hub, ledger: l}
}

func (f *fixture) insert(t *testing.T, key period.Key, st payment.Status) {
	t.Helper()
	_, err := f.ledger.Insert(context.Background(), &payment.Draft{
		TenantID:       tenant,
		Amount:         types.INR(500000),
		Method:         payment.MethodUPI,
		PeriodKey:      key,
		Status:         st,
		TransactionRef: id.NewTransactionID(),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestActivatePublishesInitialView(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2026-09", payment.StatusCompleted)

	b := binding.New(f.ledger, f.hub, identity.Static(tenant), binding.RentStatus())
	var updates atomic.Int32
	b.OnUpdate(func(binding.View) { updates.Add(1) })

	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer b.Deactivate()

	v := b.View()
	if !v.SignedIn || v.TenantID != tenant || v.Preset != "rent_status" {
		t.Fatalf("view identity = %+v", v)
	}
	if v.Period != "2026-10" || v.PeriodLabel != "October 2026" {
		t.Fatalf("period = %s (%s)", v.Period, v.PeriodLabel)
	}
	if v.Summary.Settled || len(v.Payments) != 0 {
		t.Fatalf("last month's payment leaked into rent status: %+v", v.Summary)
	}
	if v.Rent.String() != "₹5000.00" {
		t.Fatalf("Rent = %s", v.Rent)
	}
	if v.ViewID.Prefix() != id.PrefixView || v.Version != 1 || updates.Load() != 1 {
		t.Fatalf("view id %s, version %d, updates %d", v.ViewID, v.Version, updates.Load())
	}
}

func TestBindingsConvergeAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ident := identity.Static(tenant)

	status := binding.New(f.ledger, f.hub, ident, binding.RentStatus())
	stats := binding.New(f.ledger, f.hub, ident, binding.QuickStats())
	page := binding.New(f.ledger, f.hub, ident, binding.PaymentsPage())
	for _, b := range []*binding.Binding{status, stats, page} {
		if err := b.Activate(ctx); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		defer b.Deactivate()
		if b.View().Summary.Settled {
			t.Fatalf("%s settled before payment", b.Preset().Name)
		}
	}

	w := workflow.New(f.ledger, nil, workflow.WithProcessingDelay(0), workflow.WithClock(clock))
	_ = w.SelectMethod(payment.MethodUPI)
	rent := types.INR(500000)
	if _, err := w.Submit(ctx, tenant, &rent); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, b := range []*binding.Binding{stats, page} {
		b := b
		eventually(t, b.Preset().Name+" settled", func() bool {
			v := b.View()
			return v.Summary.Settled && v.Summary.LifetimeTotal.Amount == 500000
		})
	}
	eventually(t, "rent_status settled", func() bool { return status.View().Summary.Settled })
	if total := status.View().Summary.LifetimeTotal; !total.IsZero() {
		t.Fatalf("rent_status LifetimeTotal = %s, want zero for a single-period view", total)
	}

	sv := stats.View()
	if sv.RoomLabel != "204-A" || sv.DaysStayed != 9 || sv.JoinedAt == nil {
		t.Fatalf("quick stats = room %q, days %d, joined %v", sv.RoomLabel, sv.DaysStayed, sv.JoinedAt)
	}
	if len(page.View().Payments) != 1 {
		t.Fatalf("payments page has %d rows, want 1", len(page.View().Payments))
	}
}

func TestOtherTenantWritesTriggerRefetch(t *testing.T) {
	f := newFixture(t)
	b := binding.New(f.ledger, f.hub, identity.Static(tenant), binding.PaymentsPage())
	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer b.Deactivate()

	_, err := f.ledger.Insert(context.Background(), &payment.Draft{
		TenantID:       "tenant-2",
		Amount:         types.INR(450000),
		Method:         payment.MethodCard,
		PeriodKey:      "2026-10",
		Status:         payment.StatusCompleted,
		TransactionRef: id.NewTransactionID(),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// The feed is store-wide: this view refetches but still shows only its tenant.
	eventually(t, "refetch", func() bool { return b.View().Version >= 2 })
	if n := len(b.View().Payments); n != 0 {
		t.Fatalf("tenant-1 sees %d payments of tenant-2", n)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	b := binding.New(f.ledger, f.hub, identity.Static(tenant), binding.RentStatus())

	b.Deactivate() // before any activation
	for round := 0; round < 3; round++ {
		if err := b.Activate(context.Background()); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		if err := b.Activate(context.Background()); err != nil {
			t.Fatalf("second Activate: %v", err)
		}
		if got := f.hub.Subscribers(feed.ResourcePayments); got != 1 {
			t.Fatalf("round %d: subscribers = %d, want 1", round, got)
		}
		b.Deactivate()
		b.Deactivate()
		if got := f.hub.Subscribers(feed.ResourcePayments); got != 0 {
			t.Fatalf("round %d: subscribers after Deactivate = %d, want 0", round, got)
		}
		select {
		case <-b.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("refresh goroutine did not exit")
		}
	}
	if b.Active() {
		t.Fatal("binding still active")
	}
}

// flakySource fails or blocks on demand.
type flakySource struct {
	*rentledger.Ledger
	fail  atomic.Bool
	gate  chan struct{}
	gated atomic.Bool
	calls atomic.Int32
}

func (s *flakySource) FetchPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.calls.Add(1)
	if s.gated.Load() {
		<-s.gate
	}
	if s.fail.Load() {
		return nil, rentledger.ErrFetchFailed
	}
	return s.Ledger.FetchPayments(ctx, tenantID, opts)
}

func TestFetchFailureKeepsLastSnapshot(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2026-10", payment.StatusCompleted)
	src := &flakySource{Ledger: f.ledger}

	b := binding.New(src, f.hub, identity.Static(tenant), binding.PaymentsPage())
	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer b.Deactivate()

	good := b.View()
	if !good.Summary.Settled || good.LastError != nil {
		t.Fatalf("initial view = %+v", good.Summary)
	}

	src.fail.Store(true)
	b.Refresh()
	eventually(t, "failed refresh", func() bool { return b.View().LastError != nil })

	v := b.View()
	if !errors.Is(v.LastError, rentledger.ErrFetchFailed) {
		t.Fatalf("LastError = %v", v.LastError)
	}
	if !v.Summary.Settled || len(v.Payments) != len(good.Payments) {
		t.Fatal("failed refresh cleared the last good snapshot")
	}

	src.fail.Store(false)
	b.Refresh()
	eventually(t, "recovery", func() bool { return b.View().LastError == nil })
}

func TestActivateTimeoutTearsDown(t *testing.T) {
	f := newFixture(t)
	src := &flakySource{Ledger: f.ledger, gate: make(chan struct{})}
	src.gated.Store(true)

	b := binding.New(src, f.hub, identity.Static(tenant), binding.RentStatus(), binding.WithClock(clock))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.Activate(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Activate err = %v, want context.DeadlineExceeded", err)
	}
	if b.Active() {
		t.Fatal("binding still active after a failed Activate")
	}
	if got := f.hub.Subscribers(feed.ResourcePayments); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}

	close(src.gate)
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("refresh goroutine did not exit")
	}
	if v := b.View(); v.Version != 0 {
		t.Fatalf("first refresh applied after teardown: version %d", v.Version)
	}
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	f := newFixture(t)
	src := &flakySource{Ledger: f.ledger, gate: make(chan struct{})}

	b := binding.New(src, f.hub, identity.Static(tenant), binding.RentStatus(), binding.WithClock(clock))
	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	var afterDeactivate atomic.Int32
	var deactivated atomic.Bool
	b.OnUpdate(func(binding.View) {
		if deactivated.Load() {
			afterDeactivate.Add(1)
		}
	})

	src.gated.Store(true)
	f.insert(t, "2026-10", payment.StatusCompleted)
	eventually(t, "refetch in flight", func() bool { return src.calls.Load() == 2 })

	before := b.View()
	deactivated.Store(true)
	b.Deactivate()
	close(src.gate)

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("refresh goroutine did not exit")
	}
	if afterDeactivate.Load() != 0 {
		t.Fatal("stale refresh was published after deactivation")
	}
	if got := b.View(); got.Version != before.Version || got.Summary.Settled {
		t.Fatalf("stale refresh applied: version %d -> %d", before.Version, got.Version)
	}
}

func TestIdentityChangeRefetches(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2026-10", payment.StatusCompleted)
	session := identity.NewSession()

	b := binding.New(f.ledger, f.hub, session, binding.QuickStats())
	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer b.Deactivate()

	if v := b.View(); v.SignedIn || len(v.Payments) != 0 || v.RoomLabel != "" {
		t.Fatalf("signed-out view shows data: %+v", v)
	}

	session.Set(tenant)
	eventually(t, "signed-in view", func() bool {
		v := b.View()
		return v.TenantID == tenant && v.Summary.Settled
	})

	session.Clear()
	eventually(t, "signed-out view", func() bool { return !b.View().SignedIn })
	if v := b.View(); v.Profile != nil || len(v.Payments) != 0 {
		t.Fatal("signing out left tenant data on screen")
	}
}

type refreshCounter struct {
	mu       sync.Mutex
	refresh  int
	failures int
}

func (r *refreshCounter) Name() string { return "refresh-counter" }

func (r *refreshCounter) OnViewRefreshed(context.Context, string, string, time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh++
	return nil
}

func (r *refreshCounter) OnRefreshFailed(context.Context, string, string, error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	return nil
}

func TestRefreshEventsReachPlugins(t *testing.T) {
	counter := &refreshCounter{}
	s := memory.New(memory.WithClock(clock))
	hub := feed.NewHub()
	defer hub.Close()
	l := rentledger.New(s, rentledger.WithPublisher(hub), rentledger.WithClock(clock), rentledger.WithPlugin(counter))

	b := binding.New(l, hub, identity.Static(tenant), binding.RentStatus())
	if err := b.Activate(context.Background()); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer b.Deactivate()

	counter.mu.Lock()
	defer counter.mu.Unlock()
	if counter.refresh != 1 || counter.failures != 0 {
		t.Fatalf("refreshes = %d, failures = %d", counter.refresh, counter.failures)
	}
}
