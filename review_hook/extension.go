// Package reviewhook forwards Daybook events that need a human look to a
// review queue.
//
// It defines a local Publisher interface so the package does not depend on
// any particular queue. review_hook/pubsub provides the Google Cloud
// Pub/Sub implementation; callers may also inject a PublisherFunc.
package reviewhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnAnomalyDetected   = (*Extension)(nil)
	_ plugin.OnLockRecommended   = (*Extension)(nil)
	_ plugin.OnTransactionDenied = (*Extension)(nil)
	_ plugin.OnDayTransitioned   = (*Extension)(nil)
	_ plugin.OnPeriodClosed      = (*Extension)(nil)
)

// Publisher is the interface that review queues must implement.
type Publisher interface {
	Publish(ctx context.Context, event *ReviewEvent) error
}

// ReviewEvent is one item for the review queue.
type ReviewEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	OutletID   string         `json:"outlet_id,omitempty"`
	Date       string         `json:"business_date,omitempty"`
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// PublisherFunc is an adapter to use a plain function as a Publisher.
type PublisherFunc func(ctx context.Context, event *ReviewEvent) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, event *ReviewEvent) error {
	return f(ctx, event)
}

// Extension forwards review-worthy ledger events to a Publisher.
type Extension struct {
	publisher   Publisher
	enabled     map[string]bool // nil = all enabled
	minSeverity anomaly.Severity
	logger      *slog.Logger
	now         func() time.Time
}

// New creates an Extension that publishes through the provided Publisher.
func New(p Publisher, opts ...Option) *Extension {
	e := &Extension{
		publisher:   p,
		minSeverity: anomaly.SeverityWarning,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "review-hook" }

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

// OnAnomalyDetected implements plugin.OnAnomalyDetected. Anomalies below
// the configured minimum severity are not forwarded.
func (e *Extension) OnAnomalyDetected(ctx context.Context, a *anomaly.Anomaly) error {
	if a.Severity.Rank() < e.minSeverity.Rank() {
		return nil
	}
	return e.publish(ctx, &ReviewEvent{
		Action:     ActionAnomalyDetected,
		Resource:   ResourceAnomaly,
		ResourceID: a.ID.String(),
		OutletID:   a.OutletID,
		Date:       types.FormatDate(a.Date),
		Severity:   string(a.Severity),
		Title:      a.Title,
		Reason:     a.Description,
	},
		"rule", string(a.RuleType),
		"requires_review", a.RequiresReview,
		"transaction_ids", a.TransactionIDs,
	)
}

// OnLockRecommended implements plugin.OnLockRecommended.
func (e *Extension) OnLockRecommended(ctx context.Context, r *anomaly.Recommendation) error {
	ids := make([]string, 0, len(r.AnomalyIDs))
	for _, aid := range r.AnomalyIDs {
		ids = append(ids, aid.String())
	}
	return e.publish(ctx, &ReviewEvent{
		Action:     ActionLockRecommended,
		Resource:   ResourceRecommendation,
		ResourceID: r.ID.String(),
		OutletID:   r.OutletID,
		Date:       types.FormatDate(r.Date),
		Severity:   SeverityCritical,
		Title:      "Lock recommended",
		Reason:     r.Reason,
	},
		"anomaly_ids", ids,
	)
}

// ──────────────────────────────────────────────────
// Gate and day hooks
// ──────────────────────────────────────────────────

// OnTransactionDenied implements plugin.OnTransactionDenied.
func (e *Extension) OnTransactionDenied(ctx context.Context, d plugin.Denial) error {
	return e.publish(ctx, &ReviewEvent{
		Action:   ActionPostingDenied,
		Resource: ResourceDay,
		OutletID: d.OutletID,
		Date:     types.FormatDate(d.Date),
		Severity: SeverityWarning,
		Title:    "Posting denied",
		Reason:   d.Reason,
	},
		"rule", d.Rule,
		"actor", d.Actor.String(),
	)
}

// OnDayTransitioned implements plugin.OnDayTransitioned. Only unlocks and
// escalation locks go to review; routine submits and locks do not.
func (e *Extension) OnDayTransitioned(ctx context.Context, before, after *day.Record, actor access.Actor) error {
	evt := &ReviewEvent{
		Resource:   ResourceDay,
		ResourceID: after.ID.String(),
		OutletID:   after.OutletID,
		Date:       types.FormatDate(after.Date),
	}
	switch {
	case before.Status == day.StatusLocked && after.Status == day.StatusOpen:
		evt.Action = ActionDayUnlocked
		evt.Severity = SeverityCritical
		evt.Title = "Day unlocked"
		evt.Reason = after.UnlockReason
	case after.Status == day.StatusLocked && after.LockCause == day.CauseAutoEscalation:
		evt.Action = ActionDayAutoLocked
		evt.Severity = SeverityWarning
		evt.Title = "Day locked by anomaly escalation"
		evt.Reason = after.LockCause
	default:
		return nil
	}
	return e.publish(ctx, evt, "actor", actor.String(), "from", string(before.Status))
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodClosed implements plugin.OnPeriodClosed.
func (e *Extension) OnPeriodClosed(ctx context.Context, p *period.Period) error {
	return e.publish(ctx, &ReviewEvent{
		Action:     ActionPeriodClosed,
		Resource:   ResourcePeriod,
		ResourceID: string(p.Month),
		Severity:   SeverityInfo,
		Title:      "Period closed",
	},
		"closed_by", p.ClosedBy,
		"snapshot_hash", p.SnapshotHash,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// publish stamps and sends evt if its action is enabled. Publisher
// failures are logged, never returned.
func (e *Extension) publish(ctx context.Context, evt *ReviewEvent, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	evt.Metadata = meta
	evt.OccurredAt = e.now().UTC()

	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.Warn("review_hook: failed to publish review event",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", err,
		)
	}
	return nil
}
