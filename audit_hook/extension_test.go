package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/rentledger"
	audithook "github.com/xraph/rentledger/audit_hook"
	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/store/memory"
	"github.com/xraph/rentledger/types"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (tr *trail) Record(_ context.Context, evt *audithook.AuditEvent) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, evt)
	return nil
}

func (tr *trail) actions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, 0, len(tr.events))
	for _, e := range tr.events {
		out = append(out, e.Action)
	}
	return out
}

func draft() *payment.Draft {
	return &payment.Draft{
		TenantID:       "tenant-1",
		Amount:         types.INR(500000),
		Method:         payment.MethodUPI,
		PeriodKey:      "2026-10",
		Status:         payment.StatusCompleted,
		TransactionRef: id.NewTransactionID(),
	}
}

func TestRecordedPaymentIsAudited(t *testing.T) {
	tr := &trail{}
	l := rentledger.New(memory.New(), rentledger.WithPlugin(audithook.New(tr)))

	p, err := l.Insert(context.Background(), draft())
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got := tr.actions()
	if len(got) != 1 || got[0] != audithook.ActionPaymentRecorded {
		t.Fatalf("actions = %v, want [%s]", got, audithook.ActionPaymentRecorded)
	}
	evt := tr.events[0]
	if evt.ResourceID != p.ID.String() || evt.Metadata["amount"] != "₹5000.00" || evt.Metadata["period_key"] != "2026-10" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestFailureCarriesReason(t *testing.T) {
	tr := &trail{}
	ext := audithook.New(tr)

	if err := ext.OnPaymentFailed(context.Background(), "tenant-1", payment.MethodCard, errors.New("declined")); err != nil {
		t.Fatalf("OnPaymentFailed: %v", err)
	}
	evt := tr.events[0]
	if evt.Outcome != audithook.OutcomeFailure || evt.Reason != "declined" || evt.Metadata["tenant_id"] != "tenant-1" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestActionFilters(t *testing.T) {
	tests := []struct {
		name string
		opt  audithook.Option
		want int
	}{
		{"all enabled by default", nil, 2},
		{"enabled subset", audithook.WithEnabledActions(audithook.ActionFeedLost), 1},
		{"disabled subset", audithook.WithDisabledActions(audithook.ActionFeedLost), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trail{}
			var opts []audithook.Option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			ext := audithook.New(tr, opts...)
			ctx := context.Background()
			_ = ext.OnFeedLost(ctx, rentledger.ErrNotificationLost)
			_ = ext.OnPaymentFailed(ctx, "tenant-1", payment.MethodUPI, errors.New("x"))
			if got := len(tr.actions()); got != tt.want {
				t.Fatalf("recorded %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnFeedLost(context.Background(), rentledger.ErrNotificationLost); err != nil {
		t.Fatalf("OnFeedLost returned %v", err)
	}
}
