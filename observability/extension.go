// Package observability provides a metrics extension for Daybook that
// records ledger event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnTransactionPosted = (*MetricsExtension)(nil)
	_ plugin.OnTransactionDenied = (*MetricsExtension)(nil)
	_ plugin.OnDayTransitioned   = (*MetricsExtension)(nil)
	_ plugin.OnAnomalyDetected   = (*MetricsExtension)(nil)
	_ plugin.OnLockRecommended   = (*MetricsExtension)(nil)
	_ plugin.OnPeriodClosed      = (*MetricsExtension)(nil)
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

// MetricsExtension records ledger-wide event metrics.
// Register it as a Daybook plugin to track posting and review activity.
type MetricsExtension struct {
	factory MetricFactory

	// Posting metrics
	TransactionsPosted Counter
	ManualPostings     Counter
	Reversals          Counter
	PostedAmount       Histogram
	PostingsDenied     Counter

	// Day metrics
	DaysSubmitted Counter
	DaysLocked    Counter
	DaysUnlocked  Counter
	AutoLocks     Counter

	// Review metrics
	AnomaliesDetected   Counter
	CriticalAnomalies   Counter
	LockRecommendations Counter

	// Period metrics
	PeriodsClosed Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Posting metrics
		TransactionsPosted: factory.Counter("daybook.transaction.posted"),
		ManualPostings:     factory.Counter("daybook.transaction.manual"),
		Reversals:          factory.Counter("daybook.transaction.reversal"),
		PostedAmount:       factory.Histogram("daybook.transaction.amount_paise"),
		PostingsDenied:     factory.Counter("daybook.transaction.denied"),

		// Day metrics
		DaysSubmitted: factory.Counter("daybook.day.submitted"),
		DaysLocked:    factory.Counter("daybook.day.locked"),
		DaysUnlocked:  factory.Counter("daybook.day.unlocked"),
		AutoLocks:     factory.Counter("daybook.day.auto_locked"),

		// Review metrics
		AnomaliesDetected:   factory.Counter("daybook.anomaly.detected"),
		CriticalAnomalies:   factory.Counter("daybook.anomaly.critical"),
		LockRecommendations: factory.Counter("daybook.recommendation.created"),

		// Period metrics
		PeriodsClosed: factory.Counter("daybook.period.closed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnTransactionPosted implements plugin.OnTransactionPosted.
func (m *MetricsExtension) OnTransactionPosted(_ context.Context, t *transaction.Transaction) error {
	m.TransactionsPosted.Inc()
	if t.IsManual {
		m.ManualPostings.Inc()
	}
	if t.IsReversal {
		m.Reversals.Inc()
	}
	m.PostedAmount.Observe(float64(t.Amount.Amount))
	return nil
}

// OnTransactionDenied implements plugin.OnTransactionDenied.
func (m *MetricsExtension) OnTransactionDenied(_ context.Context, _ plugin.Denial) error {
	m.PostingsDenied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Day lifecycle hooks
// ──────────────────────────────────────────────────

// OnDayTransitioned implements plugin.OnDayTransitioned.
func (m *MetricsExtension) OnDayTransitioned(_ context.Context, before, after *day.Record, _ access.Actor) error {
	switch after.Status {
	case day.StatusSubmitted:
		m.DaysSubmitted.Inc()
	case day.StatusLocked:
		m.DaysLocked.Inc()
		if after.LockCause == day.CauseAutoEscalation {
			m.AutoLocks.Inc()
		}
	case day.StatusOpen:
		if before.Status == day.StatusLocked {
			m.DaysUnlocked.Inc()
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

// OnAnomalyDetected implements plugin.OnAnomalyDetected.
func (m *MetricsExtension) OnAnomalyDetected(_ context.Context, a *anomaly.Anomaly) error {
	m.AnomaliesDetected.Inc()
	if a.Severity == anomaly.SeverityCritical {
		m.CriticalAnomalies.Inc()
	}
	return nil
}

// OnLockRecommended implements plugin.OnLockRecommended.
func (m *MetricsExtension) OnLockRecommended(_ context.Context, _ *anomaly.Recommendation) error {
	m.LockRecommendations.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodClosed implements plugin.OnPeriodClosed.
func (m *MetricsExtension) OnPeriodClosed(_ context.Context, _ *period.Period) error {
	m.PeriodsClosed.Inc()
	return nil
}
