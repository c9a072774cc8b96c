package reviewhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/types"
)

var (
	fixed = time.Date(2025, time.March, 14, 4, 30, 0, 0, time.UTC)
	date  = types.Date(2025, time.March, 14)
	ho    = access.Actor{ID: "ho-1", Role: access.RoleHOAccountant}
)

type capture struct {
	events []*ReviewEvent
	err    error
}

func (c *capture) Publish(_ context.Context, evt *ReviewEvent) error {
	c.events = append(c.events, evt)
	return c.err
}

func newExt(c *capture, opts ...Option) *Extension {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixed }),
	}
	return New(c, append(base, opts...)...)
}

func critical() *anomaly.Anomaly {
	return &anomaly.Anomaly{
		ID:          id.NewAnomalyID(),
		OutletID:    "outlet-1",
		Date:        date,
		RuleType:    anomaly.RuleCashSpike,
		Severity:    anomaly.SeverityCritical,
		Title:       "Cash sale spike",
		Description: "cash sale above ceiling",
	}
}

func TestAnomalyForwarded(t *testing.T) {
	c := &capture{}
	ext := newExt(c)

	a := critical()
	require.NoError(t, ext.OnAnomalyDetected(context.Background(), a))
	require.Len(t, c.events, 1)

	evt := c.events[0]
	assert.Equal(t, ActionAnomalyDetected, evt.Action)
	assert.Equal(t, a.ID.String(), evt.ResourceID)
	assert.Equal(t, "2025-03-14", evt.Date)
	assert.Equal(t, SeverityCritical, evt.Severity)
	assert.Equal(t, "cash_sale_spike", evt.Metadata["rule"])
	assert.Equal(t, fixed, evt.OccurredAt)
}

func TestAnomalyBelowMinSeveritySkipped(t *testing.T) {
	c := &capture{}
	ext := newExt(c, WithMinSeverity(anomaly.SeverityCritical))

	a := critical()
	a.Severity = anomaly.SeverityWarning
	require.NoError(t, ext.OnAnomalyDetected(context.Background(), a))
	assert.Empty(t, c.events)
}

func TestPublisherErrorSwallowed(t *testing.T) {
	c := &capture{err: errors.New("queue down")}
	ext := newExt(c)

	assert.NoError(t, ext.OnLockRecommended(context.Background(), &anomaly.Recommendation{
		ID:         id.NewRecommendationID(),
		OutletID:   "outlet-1",
		Date:       date,
		AnomalyIDs: []id.AnomalyID{id.NewAnomalyID()},
		Reason:     "3 critical anomalies within 24h0m0s",
	}))
	require.Len(t, c.events, 1)
	assert.Len(t, c.events[0].Metadata["anomaly_ids"], 1)
}

func TestDayTransitions(t *testing.T) {
	ctx := context.Background()
	locked := day.NewRecord("outlet-1", date, types.DefaultCurrency, fixed)
	locked.Status = day.StatusLocked

	t.Run("unlock is critical", func(t *testing.T) {
		c := &capture{}
		after := locked.Clone()
		after.Status = day.StatusOpen
		after.UnlockReason = "late supplier invoice"
		require.NoError(t, newExt(c).OnDayTransitioned(ctx, locked, after, ho))
		require.Len(t, c.events, 1)
		assert.Equal(t, ActionDayUnlocked, c.events[0].Action)
		assert.Equal(t, SeverityCritical, c.events[0].Severity)
		assert.Equal(t, "late supplier invoice", c.events[0].Reason)
	})

	t.Run("escalation lock", func(t *testing.T) {
		c := &capture{}
		before := locked.Clone()
		before.Status = day.StatusOpen
		after := locked.Clone()
		after.LockCause = day.CauseAutoEscalation
		require.NoError(t, newExt(c).OnDayTransitioned(ctx, before, after, ho))
		require.Len(t, c.events, 1)
		assert.Equal(t, ActionDayAutoLocked, c.events[0].Action)
	})

	t.Run("routine submit ignored", func(t *testing.T) {
		c := &capture{}
		before := locked.Clone()
		before.Status = day.StatusOpen
		after := locked.Clone()
		after.Status = day.StatusSubmitted
		require.NoError(t, newExt(c).OnDayTransitioned(ctx, before, after, ho))
		assert.Empty(t, c.events)
	})
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	denial := plugin.Denial{OutletID: "outlet-1", Date: date, Actor: ho, Rule: "day_locked", Reason: "day locked"}

	c := &capture{}
	ext := newExt(c, WithDisabledActions(ActionPostingDenied))
	require.NoError(t, ext.OnTransactionDenied(ctx, denial))
	require.NoError(t, ext.OnAnomalyDetected(ctx, critical()))
	require.Len(t, c.events, 1)
	assert.Equal(t, ActionAnomalyDetected, c.events[0].Action)

	c = &capture{}
	ext = newExt(c, WithEnabledActions(ActionPostingDenied))
	require.NoError(t, ext.OnTransactionDenied(ctx, denial))
	require.NoError(t, ext.OnAnomalyDetected(ctx, critical()))
	require.Len(t, c.events, 1)
	assert.Equal(t, "day_locked", c.events[0].Metadata["rule"])
}

func TestPublisherFunc(t *testing.T) {
	var got string
	p := PublisherFunc(func(_ context.Context, evt *ReviewEvent) error {
		got = evt.Action
		return nil
	})
	require.NoError(t, p.Publish(context.Background(), &ReviewEvent{Action: ActionPeriodClosed}))
	assert.Equal(t, ActionPeriodClosed, got)
}
