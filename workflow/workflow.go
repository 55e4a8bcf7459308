// Package workflow runs a simulated manual rent payment.
//
// A Workflow moves through Idle, MethodSelected, Processing and then
// Succeeded or Failed. Submit waits a simulated gateway delay before it
// records a completed payment for the current period. It never marks the
// period settled itself: views learn about the payment from the change feed
// like every other observer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/rentledger"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/notify"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/types"
)

// DefaultProcessingDelay is the simulated gateway round trip.
const DefaultProcessingDelay = 2 * time.Second

// Notice titles shown to the tenant.
const (
	TitleSucceeded = "Payment Successful!"
	TitleFailed    = "Payment Failed"
)

// State is a workflow state.
type State string

const (
	StateIdle           State = "idle"
	StateMethodSelected State = "method_selected"
	StateProcessing     State = "processing"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Terminal reports whether s ends a submission.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Inserter records payments. *rentledger.Ledger satisfies it.
type Inserter interface {
	Insert(ctx context.Context, d *payment.Draft) (*payment.Payment, error)
}

// Receipt confirms a recorded payment.
type Receipt struct {
	Payment        *payment.Payment `json:"payment"`
	TransactionRef id.TransactionID `json:"transaction_reference"`
	Amount         types.Money      `json:"amount"`
	Method         string           `json:"payment_method"`
}

// Workflow orchestrates one tenant payment at a time. It is safe for
// concurrent use; a second Submit while one is processing fails with
// rentledger.ErrWorkflowBusy.
type Workflow struct {
	ledger  Inserter
	sink    notify.Sink
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   period.Clock
	delay   time.Duration

	mu      sync.Mutex
	state   State
	method  string
	lastErr error
	receipt *Receipt
	abandon context.CancelFunc
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithProcessingDelay overrides DefaultProcessingDelay.
func WithProcessingDelay(d time.Duration) Option {
	return func(w *Workflow) { w.delay = d }
}

// WithClock injects the time source used for the period key.
func WithClock(c period.Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

// WithPlugins routes submission and failure events to r.
func WithPlugins(r *plugin.Registry) Option {
	return func(w *Workflow) { w.plugins = r }
}

// New creates an idle Workflow. A nil sink discards notices.
func New(l Inserter, sink notify.Sink, opts ...Option) *Workflow {
	if sink == nil {
		sink = notify.Discard
	}
	w := &Workflow{
		ledger: l,
		sink:   sink,
		logger: slog.Default(),
		delay:  DefaultProcessingDelay,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.plugins == nil {
		w.plugins = plugin.NewRegistry().WithLogger(w.logger)
	}
	return w
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Method returns the selected payment method.
func (w *Workflow) Method() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.method
}

// LastError returns the error that ended the last submission, if any.
func (w *Workflow) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Receipt returns the receipt of the last successful submission.
func (w *Workflow) Receipt() *Receipt {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.receipt
}

// SelectMethod picks a payment method. It is refused while processing.
func (w *Workflow) SelectMethod(method string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateProcessing {
		return rentledger.ErrWorkflowBusy
	}
	if method == "" {
		return rentledger.ValidationError{Field: "payment_method", Message: "is required"}
	}
	w.method = method
	w.state = StateMethodSelected
	w.lastErr = nil
	w.receipt = nil
	return nil
}

// Reset returns the workflow to Idle. It is refused while processing; use
// Abandon first.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateProcessing {
		return rentledger.ErrWorkflowBusy
	}
	w.state = StateIdle
	w.method = ""
	w.lastErr = nil
	w.receipt = nil
	return nil
}

// Abandon cancels an in-flight submission during its processing delay. The
// submission ends Failed and nothing is written. Once the delay is over the
// write goes ahead and Abandon is a no-op.
func (w *Workflow) Abandon() {
	w.mu.Lock()
	cancel := w.abandon
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit pays rent for tenantID with the selected method. Precondition
// failures return a ValidationError and leave the state unchanged.
func (w *Workflow) Submit(ctx context.Context, tenantID string, rent *types.Money) (*Receipt, error) {
	w.mu.Lock()
	if w.state == StateProcessing {
		w.mu.Unlock()
		return nil, rentledger.ErrWorkflowBusy
	}
	if err := w.validate(tenantID, rent); err != nil {
		w.mu.Unlock()
		return nil, err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	method := w.method
	amount := *rent
	ref := id.NewTransactionID()
	w.state = StateProcessing
	w.lastErr = nil
	w.receipt = nil
	w.abandon = cancel
	w.mu.Unlock()

	w.logger.Info("payment processing",
		"tenant_id", tenantID,
		"amount", amount.String(),
		"payment_method", method,
		"transaction_ref", ref.String(),
	)
	w.plugins.EmitPaymentSubmitted(ctx, tenantID, amount, method)

	err := w.wait(waitCtx)
	w.mu.Lock()
	w.abandon = nil
	if err == nil {
		// Abandon may have fired between the timer and disarming.
		err = waitCtx.Err()
	}
	w.mu.Unlock()
	if err != nil {
		return nil, w.fail(ctx, tenantID, method, fmt.Errorf("payment abandoned: %w", err), err.Error())
	}

	p, err := w.ledger.Insert(ctx, &payment.Draft{
		TenantID:       tenantID,
		Amount:         amount,
		Method:         method,
		PeriodKey:      w.clock.Current(),
		Status:         payment.StatusCompleted,
		TransactionRef: ref,
	})
	if err != nil {
		return nil, w.fail(ctx, tenantID, method, err, reason(err))
	}

	receipt := &Receipt{
		Payment:        p,
		TransactionRef: ref,
		Amount:         amount,
		Method:         method,
	}

	w.mu.Lock()
	w.state = StateSucceeded
	w.receipt = receipt
	w.abandon = nil
	w.mu.Unlock()

	w.sink.Notify(ctx, notify.Notice{
		Title:       TitleSucceeded,
		Description: fmt.Sprintf("%s paid via %s", amount.String(), method),
		Severity:    notify.SeveritySuccess,
	})
	return receipt, nil
}

// validate checks Submit preconditions; callers hold w.mu.
func (w *Workflow) validate(tenantID string, rent *types.Money) error {
	switch {
	case w.state.Terminal():
		return rentledger.ValidationError{Field: "state", Message: "select a payment method to start a new payment"}
	case tenantID == "":
		return rentledger.ValidationError{Field: "tenant_id", Message: "no tenant identity"}
	case rent == nil || !rent.IsPositive():
		return rentledger.ValidationError{Field: "rent_amount", Message: "must be positive"}
	case w.method == "":
		return rentledger.ValidationError{Field: "payment_method", Message: "is required"}
	}
	return nil
}

func (w *Workflow) wait(ctx context.Context) error {
	if w.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Workflow) fail(ctx context.Context, tenantID, method string, err error, description string) error {
	w.mu.Lock()
	w.state = StateFailed
	w.lastErr = err
	w.abandon = nil
	w.mu.Unlock()

	w.logger.Warn("payment failed",
		"tenant_id", tenantID,
		"payment_method", method,
		"error", err,
	)

	// ctx may already be cancelled; feedback still has to reach the tenant.
	notifyCtx := context.WithoutCancel(ctx)
	w.plugins.EmitPaymentFailed(notifyCtx, tenantID, method, err)
	w.sink.Notify(notifyCtx, notify.Notice{
		Title:       TitleFailed,
		Description: description,
		Severity:    notify.SeverityError,
	})
	return err
}

// reason extracts the store's own failure text.
func reason(err error) string {
	var rejected *rentledger.WriteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return err.Error()
}
