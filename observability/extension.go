// Package observability provides a metrics extension for the rent ledger
// that counts payment, feed and view events through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/plugin"
	"github.com/xraph/rentledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnPaymentSubmitted = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed    = (*MetricsExtension)(nil)
	_ plugin.OnChangePublished  = (*MetricsExtension)(nil)
	_ plugin.OnFeedLost         = (*MetricsExtension)(nil)
	_ plugin.OnViewRefreshed    = (*MetricsExtension)(nil)
	_ plugin.OnRefreshFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide metrics. Register it as a plugin.
type MetricsExtension struct {
	factory MetricFactory

	// Payment metrics
	PaymentsSubmitted Counter
	PaymentsRecorded  Counter
	PaymentsFailed    Counter
	PaymentAmount     Histogram

	// Feed metrics
	SignalsPublished Counter
	FeedLost         Counter

	// View metrics
	ViewRefreshes       Counter
	ViewRefreshFailures Counter
	ViewRefreshLatency  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PaymentsSubmitted: factory.Counter("rentledger.payment.submitted"),
		PaymentsRecorded:  factory.Counter("rentledger.payment.recorded"),
		PaymentsFailed:    factory.Counter("rentledger.payment.failed"),
		PaymentAmount:     factory.Histogram("rentledger.payment.amount"),

		SignalsPublished: factory.Counter("rentledger.feed.published"),
		FeedLost:         factory.Counter("rentledger.feed.lost"),

		ViewRefreshes:       factory.Counter("rentledger.view.refreshed"),
		ViewRefreshFailures: factory.Counter("rentledger.view.refresh_failed"),
		ViewRefreshLatency:  factory.Histogram("rentledger.view.refresh.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentSubmitted implements plugin.OnPaymentSubmitted.
func (m *MetricsExtension) OnPaymentSubmitted(_ context.Context, _ string, _ types.Money, _ string) error {
	m.PaymentsSubmitted.Inc()
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded. The amount is
// observed in major units.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, p *payment.Payment) error {
	m.PaymentsRecorded.Inc()
	if p != nil {
		m.PaymentAmount.Observe(float64(p.Amount.Amount) / 100)
	}
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _, _ string, _ error) error {
	m.PaymentsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Feed hooks
// ──────────────────────────────────────────────────

// OnChangePublished implements plugin.OnChangePublished.
func (m *MetricsExtension) OnChangePublished(_ context.Context, _ feed.Signal) error {
	m.SignalsPublished.Inc()
	return nil
}

// OnFeedLost implements plugin.OnFeedLost.
func (m *MetricsExtension) OnFeedLost(_ context.Context, _ error) error {
	m.FeedLost.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// View hooks
// ──────────────────────────────────────────────────

// OnViewRefreshed implements plugin.OnViewRefreshed.
func (m *MetricsExtension) OnViewRefreshed(_ context.Context, _, _ string, elapsed time.Duration) error {
	m.ViewRefreshes.Inc()
	m.ViewRefreshLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnRefreshFailed implements plugin.OnRefreshFailed.
func (m *MetricsExtension) OnRefreshFailed(_ context.Context, _, _ string, _ error) error {
	m.ViewRefreshFailures.Inc()
	return nil
}
