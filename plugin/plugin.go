// Package plugin provides an extensible plugin system for Daybook.
// Plugins can hook into ledger events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Posting hooks
// ──────────────────────────────────────────────────

// OnTransactionPosted is called after a transaction is committed. Replays
// of an idempotency key do not fire it again.
type OnTransactionPosted interface {
	Plugin
	OnTransactionPosted(ctx context.Context, t *transaction.Transaction) error
}

// Denial describes a write the gate refused.
type Denial struct {
	OutletID string
	Date     time.Time
	Actor    access.Actor
	Rule     string
	Reason   string
}

// OnTransactionDenied is called when the gate refuses a write.
type OnTransactionDenied interface {
	Plugin
	OnTransactionDenied(ctx context.Context, d Denial) error
}

// ──────────────────────────────────────────────────
// Day lifecycle hooks
// ──────────────────────────────────────────────────

// OnDayTransitioned is called after a day changes status.
type OnDayTransitioned interface {
	Plugin
	OnDayTransitioned(ctx context.Context, before, after *day.Record, actor access.Actor) error
}

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

// OnAnomalyDetected is called once per newly stored anomaly.
type OnAnomalyDetected interface {
	Plugin
	OnAnomalyDetected(ctx context.Context, a *anomaly.Anomaly) error
}

// OnLockRecommended is called once per newly stored lock recommendation.
type OnLockRecommended interface {
	Plugin
	OnLockRecommended(ctx context.Context, r *anomaly.Recommendation) error
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodClosed is called after a period is closed.
type OnPeriodClosed interface {
	Plugin
	OnPeriodClosed(ctx context.Context, p *period.Period) error
}
