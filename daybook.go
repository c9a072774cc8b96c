package daybook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/lock"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/rules"
	"github.com/xraph/daybook/store"
)

// TracerName is the instrumentation scope of the engine's spans.
const TracerName = "github.com/xraph/daybook"

// Engine is the ledger integrity core. It is the only caller of the store
// and holds no background goroutines.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	tracer  trace.Tracer

	clock     clock.Clock
	calendar  clock.Calendar
	locker    lock.Locker
	rules     *rules.Engine
	escalator rules.Escalator
	machine   day.Machine
	validate  *validator.Validate

	// Configuration
	config     Config
	extraRules []rules.Rule
}

// New creates an engine over s. The configuration is resolved once; an
// unknown timezone or out-of-range day start hour is an error.
func New(s store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(TracerName),
		clock:   clock.System{},
		locker:  lock.NewLocal(),
		config:  DefaultConfig(),
	}

	for _, opt := range opts {
		opt(e)
	}

	cal, err := clock.NewCalendar(e.config.Timezone, e.config.DayStartHour)
	if err != nil {
		return nil, fmt.Errorf("daybook: %w", err)
	}
	e.calendar = cal

	ruleOpts := []rules.Option{rules.WithCalendar(cal)}
	for _, r := range e.extraRules {
		ruleOpts = append(ruleOpts, rules.WithRule(r))
	}
	e.rules = rules.New(e.config.Rules, ruleOpts...)
	e.escalator = rules.NewEscalator(e.config.Rules)
	e.machine = day.Machine{
		MinUnlockReason: e.config.MinUnlockReason,
		VarianceEpsilon: e.config.LockVarianceEpsilon,
	}
	e.validate = newValidator()

	return e, nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocker sets the per-key locker. The default is in-process; use
// lock/redis when several engine instances share a store.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithRule adds a custom anomaly rule.
func WithRule(r rules.Rule) Option {
	return func(e *Engine) {
		e.extraRules = append(e.extraRules, r)
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(TracerName)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("daybook started",
		"timezone", e.calendar.Location.String(),
		"day_start_hour", e.calendar.DayStartHour,
		"rules", len(e.rules.Rules()),
		"plugins", e.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Config returns the resolved configuration.
func (e *Engine) Config() Config { return e.config }

// Calendar returns the business calendar.
func (e *Engine) Calendar() clock.Calendar { return e.calendar }

// Today returns the current business date.
func (e *Engine) Today() time.Time { return e.calendar.Today(e.clock) }

// ──────────────────────────────────────────────────
// Tracing helpers
// ──────────────────────────────────────────────────

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "daybook."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
