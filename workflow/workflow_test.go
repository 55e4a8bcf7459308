package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/notify"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/status"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
	"github.com/xraph/rentledger/workflow"
)

var fixedNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type captured struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (c *captured) Notify(_ context.Context, n notify.Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

func (c *captured) last() notify.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notices) == 0 {
		return notify.Notice{}
	}
	return c.notices[len(c.notices)-1]
}

type fixture struct {
	store  *memory.Store
	hub    *feed.Hub
	ledger *rentledger.Ledger
	sink   *captured
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New(memory.WithClock(clock))
	hub := feed.NewHub()
	l := rentledger.New(s, rentledger.WithPublisher(hub), rentledger.WithClock(clock))
	t.Cleanup(func() { _ = hub.Close() })
	return &fixture{store: s, hub: hub, ledger: l, sink: &captured{}}
}

func (f *fixture) workflow(delay time.Duration) *workflow.Workflow {
	return workflow.New(f.ledger, f.sink,
		workflow.WithProcessingDelay(delay),
		workflow.WithClock(clock),
	)
}

func waitState(t *testing.T, w *workflow.Workflow, want workflow.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", w.State(), want)
}

func TestUPIRentPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rent := types.INR(500000)

	signals := make(chan feed.Signal, 1)
	if _, err := f.hub.Subscribe(feed.ResourcePayments, func(sig feed.Signal) {
		select {
		case signals <- sig:
		default:
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	w := f.workflow(10 * time.Millisecond)
	if w.State() != workflow.StateIdle {
		t.Fatalf("initial state = %s", w.State())
	}
	if err := w.SelectMethod(payment.MethodUPI); err != nil {
		t.Fatalf("SelectMethod: %v", err)
	}

	receipt, err := w.Submit(ctx, "tenant-1", &rent)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if w.State() != workflow.StateSucceeded {
		t.Fatalf("state = %s, want succeeded", w.State())
	}
	if receipt.TransactionRef.IsNil() || receipt.Payment.TransactionRef.String() != receipt.TransactionRef.String() {
		t.Fatalf("receipt transaction ref mismatch: %+v", receipt)
	}

	payments, err := f.ledger.FetchPayments(ctx, "tenant-1", payment.ListOpts{})
	if err != nil {
		t.Fatalf("FetchPayments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}
	p := payments[0]
	if !p.Amount.Equal(rent) || p.PeriodKey != period.Of(fixedNow) || p.Status != payment.StatusCompleted || p.Method != payment.MethodUPI {
		t.Fatalf("recorded payment = %+v", p)
	}

	sum := status.Derive(period.Of(fixedNow), "inr", payments)
	if !sum.Settled || sum.LifetimeTotal.Amount != 500000 {
		t.Fatalf("summary = %+v", sum)
	}

	n := f.sink.last()
	if n.Title != "Payment Successful!" || n.Description != "₹5000.00 paid via UPI" || n.Severity != notify.SeveritySuccess {
		t.Fatalf("notice = %+v", n)
	}

	select {
	case sig := <-signals:
		if sig.Op != feed.OpInsert || sig.TenantID != "tenant-1" {
			t.Fatalf("signal = %+v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not receive its own change signal")
	}
}

func TestStoreRejectionFailsWithoutRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rent := types.INR(500000)
	f.store.Fail(errors.New("new row violates row-level security policy"))

	w := f.workflow(0)
	_ = w.SelectMethod(payment.MethodCard)

	_, err := w.Submit(ctx, "tenant-1", &rent)
	if !errors.Is(err, rentledger.ErrWriteRejected) {
		t.Fatalf("err = %v, want ErrWriteRejected", err)
	}
	if w.State() != workflow.StateFailed {
		t.Fatalf("state = %s, want failed", w.State())
	}
	if !errors.Is(w.LastError(), rentledger.ErrWriteRejected) {
		t.Fatalf("LastError = %v", w.LastError())
	}
	if f.store.Len() != 0 {
		t.Fatalf("store has %d payments, want 0", f.store.Len())
	}

	n := f.sink.last()
	if n.Title != "Payment Failed" || n.Description != "new row violates row-level security policy" {
		t.Fatalf("notice = %+v", n)
	}

	payments, _ := f.ledger.FetchPayments(ctx, "tenant-1", payment.ListOpts{})
	sum := status.Derive(period.Of(fixedNow), "inr", payments)
	if sum.Settled || !sum.LifetimeTotal.IsZero() {
		t.Fatalf("summary changed after failed payment: %+v", sum)
	}
}

func TestSubmitValidation(t *testing.T) {
	rent := types.INR(500000)
	zero := types.INR(0)

	tests := []struct {
		name   string
		method string
		tenant string
		rent   *types.Money
		field  string
	}{
		{"no method", "", "tenant-1", &rent, "payment_method"},
		{"no tenant", payment.MethodUPI, "", &rent, "tenant_id"},
		{"no rent", payment.MethodUPI, "tenant-1", nil, "rent_amount"},
		{"zero rent", payment.MethodUPI, "tenant-1", &zero, "rent_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.workflow(0)
			if tt.method != "" {
				_ = w.SelectMethod(tt.method)
			}
			before := w.State()

			_, err := w.Submit(context.Background(), tt.tenant, tt.rent)
			if !errors.Is(err, rentledger.ErrValidationFailed) {
				t.Fatalf("err = %v, want ErrValidationFailed", err)
			}
			var ve rentledger.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("err = %v, want field %s", err, tt.field)
			}
			if w.State() != before {
				t.Fatalf("state = %s, want %s", w.State(), before)
			}
			if f.store.Len() != 0 {
				t.Fatal("validation failure reached the store")
			}
		})
	}
}

func TestSubmitWhileProcessingIsBusy(t *testing.T) {
	f := newFixture(t)
	rent := types.INR(500000)
	w := f.workflow(200 * time.Millisecond)
	_ = w.SelectMethod(payment.MethodUPI)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), "tenant-1", &rent)
		done <- err
	}()
	waitState(t, w, workflow.StateProcessing)

	if _, err := w.Submit(context.Background(), "tenant-1", &rent); !errors.Is(err, rentledger.ErrWorkflowBusy) {
		t.Fatalf("second Submit: err = %v, want ErrWorkflowBusy", err)
	}
	if err := w.SelectMethod(payment.MethodCard); !errors.Is(err, rentledger.ErrWorkflowBusy) {
		t.Fatalf("SelectMethod while processing: err = %v, want ErrWorkflowBusy", err)
	}
	if err := w.Reset(); !errors.Is(err, rentledger.ErrWorkflowBusy) {
		t.Fatalf("Reset while processing: err = %v, want ErrWorkflowBusy", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if f.store.Len() != 1 {
		t.Fatalf("store has %d payments, want 1", f.store.Len())
	}
}

func TestAbandonDuringDelayWritesNothing(t *testing.T) {
	f := newFixture(t)
	rent := types.INR(500000)
	w := f.workflow(10 * time.Second)
	_ = w.SelectMethod(payment.MethodUPI)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), "tenant-1", &rent)
		done <- err
	}()
	waitState(t, w, workflow.StateProcessing)
	w.Abandon()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Abandon did not interrupt the processing delay")
	}
	if w.State() != workflow.StateFailed {
		t.Fatalf("state = %s, want failed", w.State())
	}
	if f.store.Len() != 0 {
		t.Fatal("abandoned payment was written")
	}
	if n := f.sink.last(); n.Title != workflow.TitleFailed {
		t.Fatalf("notice = %+v", n)
	}
}

// gatedInserter holds Insert until release is closed.
type gatedInserter struct {
	next    workflow.Inserter
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (g *gatedInserter) Insert(ctx context.Context, d *payment.Draft) (*payment.Payment, error) {
	close(g.started)
	<-g.release
	g.ctxErr = ctx.Err()
	return g.next.Insert(ctx, d)
}

func TestAbandonAfterDelayLetsWriteFinish(t *testing.T) {
	f := newFixture(t)
	rent := types.INR(500000)
	g := &gatedInserter{next: f.ledger, started: make(chan struct{}), release: make(chan struct{})}
	w := workflow.New(g, f.sink, workflow.WithProcessingDelay(0), workflow.WithClock(clock))
	_ = w.SelectMethod(payment.MethodUPI)

	signals := make(chan feed.Signal, 1)
	sub, err := f.hub.Subscribe(feed.ResourcePayments, func(s feed.Signal) { signals <- s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer f.hub.Unsubscribe(sub)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), "tenant-1", &rent)
		done <- err
	}()

	<-g.started
	w.Abandon()
	close(g.release)

	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if g.ctxErr != nil {
		t.Fatalf("insert ran with a cancelled context: %v", g.ctxErr)
	}
	if w.State() != workflow.StateSucceeded || f.store.Len() != 1 {
		t.Fatalf("state = %s, stored = %d", w.State(), f.store.Len())
	}
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("recorded payment was never announced")
	}
}

func TestContextDeadlineDuringDelay(t *testing.T) {
	f := newFixture(t)
	rent := types.INR(500000)
	w := f.workflow(10 * time.Second)
	_ = w.SelectMethod(payment.MethodUPI)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := w.Submit(ctx, "tenant-1", &rent); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if f.store.Len() != 0 {
		t.Fatal("timed-out payment was written")
	}
}

func TestRestartAfterTerminalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rent := types.INR(500000)
	w := f.workflow(0)
	_ = w.SelectMethod(payment.MethodUPI)

	if _, err := w.Submit(ctx, "tenant-1", &rent); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := w.Submit(ctx, "tenant-1", &rent); !errors.Is(err, rentledger.ErrValidationFailed) {
		t.Fatalf("Submit from succeeded: err = %v, want ErrValidationFailed", err)
	}

	if err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if w.State() != workflow.StateIdle || w.Method() != "" || w.Receipt() != nil {
		t.Fatal("Reset did not clear the workflow")
	}

	_ = w.SelectMethod(payment.MethodNetBanking)
	if _, err := w.Submit(ctx, "tenant-1", &rent); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	// Nothing stops a second completed payment for the same period.
	payments, _ := f.ledger.FetchPayments(ctx, "tenant-1", payment.ListOpts{PeriodKey: string(period.Of(fixedNow))})
	if len(payments) != 2 {
		t.Fatalf("payments this period = %d, want 2", len(payments))
	}
	if sum := status.Derive(period.Of(fixedNow), "inr", payments); sum.LifetimeTotal.Amount != 1000000 {
		t.Fatalf("LifetimeTotal = %v, want double count", sum.LifetimeTotal)
	}
}
