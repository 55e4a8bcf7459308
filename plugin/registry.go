package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/rentledger/feed"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onPaymentSubmitted []OnPaymentSubmitted
	onPaymentRecorded  []OnPaymentRecorded
	onPaymentFailed    []OnPaymentFailed
	onChangePublished  []OnChangePublished
	onFeedLost         []OnFeedLost
	onViewRefreshed    []OnViewRefreshed
	onRefreshFailed    []OnRefreshFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPaymentSubmitted); ok {
		r.onPaymentSubmitted = append(r.onPaymentSubmitted, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnChangePublished); ok {
		r.onChangePublished = append(r.onChangePublished, v)
	}
	if v, ok := p.(OnFeedLost); ok {
		r.onFeedLost = append(r.onFeedLost, v)
	}
	if v, ok := p.(OnViewRefreshed); ok {
		r.onViewRefreshed = append(r.onViewRefreshed, v)
	}
	if v, ok := p.(OnRefreshFailed); ok {
		r.onRefreshFailed = append(r.onRefreshFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name  string
	iface reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnPaymentSubmitted", reflect.TypeOf((*OnPaymentSubmitted)(nil)).Elem()},
	{"OnPaymentRecorded", reflect.TypeOf((*OnPaymentRecorded)(nil)).Elem()},
	{"OnPaymentFailed", reflect.TypeOf((*OnPaymentFailed)(nil)).Elem()},
	{"OnChangePublished", reflect.TypeOf((*OnChangePublished)(nil)).Elem()},
	{"OnFeedLost", reflect.TypeOf((*OnFeedLost)(nil)).Elem()},
	{"OnViewRefreshed", reflect.TypeOf((*OnViewRefreshed)(nil)).Elem()},
	{"OnRefreshFailed", reflect.TypeOf((*OnRefreshFailed)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.iface) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitPaymentSubmitted emits a payment submitted event.
func (r *Registry) EmitPaymentSubmitted(ctx context.Context, tenantID string, amount types.Money, method string) {
	r.mu.RLock()
	plugins := r.onPaymentSubmitted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnPaymentSubmitted", p.Name(), func() error {
			return p.OnPaymentSubmitted(ctx, tenantID, amount, method)
		})
	}
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, pay *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnPaymentRecorded", p.Name(), func() error {
			return p.OnPaymentRecorded(ctx, pay)
		})
	}
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, tenantID, method string, cause error) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnPaymentFailed", p.Name(), func() error {
			return p.OnPaymentFailed(ctx, tenantID, method, cause)
		})
	}
}

// EmitChangePublished emits a change published event.
func (r *Registry) EmitChangePublished(ctx context.Context, sig feed.Signal) {
	r.mu.RLock()
	plugins := r.onChangePublished
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnChangePublished", p.Name(), func() error {
			return p.OnChangePublished(ctx, sig)
		})
	}
}

// EmitFeedLost emits a feed lost event.
func (r *Registry) EmitFeedLost(ctx context.Context, cause error) {
	r.mu.RLock()
	plugins := r.onFeedLost
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnFeedLost", p.Name(), func() error {
			return p.OnFeedLost(ctx, cause)
		})
	}
}

// EmitViewRefreshed emits a view refreshed event.
func (r *Registry) EmitViewRefreshed(ctx context.Context, viewID, preset string, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onViewRefreshed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnViewRefreshed", p.Name(), func() error {
			return p.OnViewRefreshed(ctx, viewID, preset, elapsed)
		})
	}
}

// EmitRefreshFailed emits a refresh failed event.
func (r *Registry) EmitRefreshFailed(ctx context.Context, viewID, preset string, cause error) {
	r.mu.RLock()
	plugins := r.onRefreshFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnRefreshFailed", p.Name(), func() error {
			return p.OnRefreshFailed(ctx, viewID, preset, cause)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
