// Package audithook bridges rent ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnPaymentSubmitted = (*Extension)(nil)
	_ plugin.OnPaymentRecorded  = (*Extension)(nil)
	_ plugin.OnPaymentFailed    = (*Extension)(nil)
	_ plugin.OnChangePublished  = (*Extension)(nil)
	_ plugin.OnFeedLost         = (*Extension)(nil)
	_ plugin.OnRefreshFailed    = (*Extension)(nil)
)

// Recorder receives audit events. It has the shape of chronicle.Emitter, so a
// *chronicle.Chronicle can be passed in at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record. Field names follow chronicle/audit.Event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges rent ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentSubmitted implements plugin.OnPaymentSubmitted.
func (e *Extension) OnPaymentSubmitted(ctx context.Context, tenantID string, amount types.Money, method string) error {
	return e.record(ctx, ActionPaymentSubmitted, SeverityInfo, OutcomeSuccess,
		ResourcePayment, "", CategoryPayment, nil,
		"tenant_id", tenantID,
		"amount", amount.String(),
		"payment_method", method,
	)
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, p *payment.Payment) error {
	if p == nil {
		return nil
	}
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"tenant_id", p.TenantID,
		"amount", p.Amount.String(),
		"payment_method", p.Method,
		"period_key", p.PeriodKey.String(),
		"status", string(p.Status),
		"transaction_ref", p.TransactionRef.String(),
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, tenantID, method string, err error) error {
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourcePayment, "", CategoryPayment, err,
		"tenant_id", tenantID,
		"payment_method", method,
	)
}

// ──────────────────────────────────────────────────
// Feed hooks
// ──────────────────────────────────────────────────

// OnChangePublished implements plugin.OnChangePublished.
func (e *Extension) OnChangePublished(ctx context.Context, sig feed.Signal) error {
	return e.record(ctx, ActionFeedPublished, SeverityInfo, OutcomeSuccess,
		ResourceFeed, sig.Resource, CategoryIntegration, nil,
		"op", string(sig.Op),
		"tenant_id", sig.TenantID,
		"at", sig.At.Format(time.RFC3339Nano),
	)
}

// OnFeedLost implements plugin.OnFeedLost.
func (e *Extension) OnFeedLost(ctx context.Context, err error) error {
	return e.record(ctx, ActionFeedLost, SeverityCritical, OutcomeFailure,
		ResourceFeed, "", CategoryIntegration, err,
	)
}

// ──────────────────────────────────────────────────
// View hooks
// ──────────────────────────────────────────────────

// OnRefreshFailed implements plugin.OnRefreshFailed. Successful refreshes
// are not audited.
func (e *Extension) OnRefreshFailed(ctx context.Context, viewID, preset string, err error) error {
	return e.record(ctx, ActionViewRefreshFailed, SeverityError, OutcomeFailure,
		ResourceView, viewID, CategoryAccess, err,
		"preset", preset,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	// Audit failures never fail the ledger operation that triggered them.
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: record failed",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
