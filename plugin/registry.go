package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onTransactionPosted []OnTransactionPosted
	onTransactionDenied []OnTransactionDenied
	onDayTransitioned   []OnDayTransitioned
	onAnomalyDetected   []OnAnomalyDetected
	onLockRecommended   []OnLockRecommended
	onPeriodClosed      []OnPeriodClosed
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

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTransactionPosted); ok {
		r.onTransactionPosted = append(r.onTransactionPosted, v)
	}
	if v, ok := p.(OnTransactionDenied); ok {
		r.onTransactionDenied = append(r.onTransactionDenied, v)
	}
	if v, ok := p.(OnDayTransitioned); ok {
		r.onDayTransitioned = append(r.onDayTransitioned, v)
	}
	if v, ok := p.(OnAnomalyDetected); ok {
		r.onAnomalyDetected = append(r.onAnomalyDetected, v)
	}
	if v, ok := p.(OnLockRecommended); ok {
		r.onLockRecommended = append(r.onLockRecommended, v)
	}
	if v, ok := p.(OnPeriodClosed); ok {
		r.onPeriodClosed = append(r.onPeriodClosed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnTransactionPosted)(nil)).Elem(), "OnTransactionPosted")
	checkInterface(reflect.TypeOf((*OnTransactionDenied)(nil)).Elem(), "OnTransactionDenied")
	checkInterface(reflect.TypeOf((*OnDayTransitioned)(nil)).Elem(), "OnDayTransitioned")
	checkInterface(reflect.TypeOf((*OnAnomalyDetected)(nil)).Elem(), "OnAnomalyDetected")
	checkInterface(reflect.TypeOf((*OnLockRecommended)(nil)).Elem(), "OnLockRecommended")
	checkInterface(reflect.TypeOf((*OnPeriodClosed)(nil)).Elem(), "OnPeriodClosed")

	return interfaces
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

// emit calls fn for every plugin in hooks. Failures are logged and never
// propagate: a broken plugin must not undo a committed ledger write.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitTransactionPosted emits a transaction posted event.
func (r *Registry) EmitTransactionPosted(ctx context.Context, t *transaction.Transaction) {
	r.mu.RLock()
	plugins := r.onTransactionPosted
	r.mu.RUnlock()

	emit(ctx, r, "OnTransactionPosted", plugins, func(p OnTransactionPosted) error {
		return p.OnTransactionPosted(ctx, t)
	})
}

// EmitTransactionDenied emits a gate denial event.
func (r *Registry) EmitTransactionDenied(ctx context.Context, d Denial) {
	r.mu.RLock()
	plugins := r.onTransactionDenied
	r.mu.RUnlock()

	emit(ctx, r, "OnTransactionDenied", plugins, func(p OnTransactionDenied) error {
		return p.OnTransactionDenied(ctx, d)
	})
}

// EmitDayTransitioned emits a day status change event.
func (r *Registry) EmitDayTransitioned(ctx context.Context, before, after *day.Record, actor access.Actor) {
	r.mu.RLock()
	plugins := r.onDayTransitioned
	r.mu.RUnlock()

	emit(ctx, r, "OnDayTransitioned", plugins, func(p OnDayTransitioned) error {
		return p.OnDayTransitioned(ctx, before, after, actor)
	})
}

// EmitAnomalyDetected emits an anomaly detected event.
func (r *Registry) EmitAnomalyDetected(ctx context.Context, a *anomaly.Anomaly) {
	r.mu.RLock()
	plugins := r.onAnomalyDetected
	r.mu.RUnlock()

	emit(ctx, r, "OnAnomalyDetected", plugins, func(p OnAnomalyDetected) error {
		return p.OnAnomalyDetected(ctx, a)
	})
}

// EmitLockRecommended emits a lock recommendation event.
func (r *Registry) EmitLockRecommended(ctx context.Context, rec *anomaly.Recommendation) {
	r.mu.RLock()
	plugins := r.onLockRecommended
	r.mu.RUnlock()

	emit(ctx, r, "OnLockRecommended", plugins, func(p OnLockRecommended) error {
		return p.OnLockRecommended(ctx, rec)
	})
}

// EmitPeriodClosed emits a period closed event.
func (r *Registry) EmitPeriodClosed(ctx context.Context, p *period.Period) {
	r.mu.RLock()
	plugins := r.onPeriodClosed
	r.mu.RUnlock()

	emit(ctx, r, "OnPeriodClosed", plugins, func(pl OnPeriodClosed) error {
		return pl.OnPeriodClosed(ctx, p)
	})
}

// callWithTimeout executes a function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
