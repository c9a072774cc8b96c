package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

var (
	ctx  = context.Background()
	now  = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
	date = types.Date(2025, time.March, 14)
)

func newDay(t *testing.T, s *Store, outlet string, d time.Time) *day.Record {
	t.Helper()
	r := day.NewRecord(outlet, d, types.DefaultCurrency, now)
	require.NoError(t, s.CreateDay(ctx, r))
	return r
}

func newTxn(r *day.Record, key string, rupees int64) *transaction.Transaction {
	return &transaction.Transaction{
		ID:             id.NewTransactionID(),
		OutletID:       r.OutletID,
		Date:           r.Date,
		DayID:          r.ID,
		Type:           transaction.TypeIncome,
		Category:       "sales",
		PaymentMode:    transaction.ModeCash,
		Amount:         types.Rupees(rupees),
		CreatedBy:      "staff-1",
		CreatedAt:      now,
		IdempotencyKey: key,
	}
}

func entry(action audit.Action, entityID string) *audit.Entry {
	return &audit.Entry{
		ID:        id.NewAuditEntryID(),
		Actor:     access.Actor{ID: "ho-1", Role: access.RoleHOAccountant},
		Action:    action,
		Entity:    audit.EntityDay,
		EntityID:  entityID,
		Severity:  audit.SeverityInfo,
		Timestamp: now,
	}
}

func lock(t *testing.T, s *Store, dayID id.DayID) {
	t.Helper()
	r, err := s.GetDay(ctx, dayID)
	require.NoError(t, err)
	from := r.Status
	r.Status = day.StatusLocked
	r.Version++
	require.NoError(t, s.TransitionDay(ctx, r, from, entry(audit.ActionDayLock, r.ID.String())))
}

func TestDayCRUD(t *testing.T) {
	s := New()
	r := newDay(t, s, "o1", date)

	assert.ErrorIs(t, s.CreateDay(ctx, day.NewRecord("o1", date, "inr", now)), daybook.ErrAlreadyExists)

	got, err := s.GetDayByDate(ctx, "o1", date)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = s.GetDay(ctx, id.NewDayID())
	assert.ErrorIs(t, err, daybook.ErrDayNotFound)

	got.OpeningCash = types.Rupees(500)
	stored, _ := s.GetDay(ctx, r.ID)
	assert.True(t, stored.OpeningCash.IsZero(), "returned records are copies")
}

func TestUpdateDayOptimistic(t *testing.T) {
	s := New()
	r := newDay(t, s, "o1", date)

	next := r.Clone()
	next.OpeningCash = types.Rupees(1000)
	next.OpeningSet = true
	next.Version++
	require.NoError(t, s.UpdateDay(ctx, next))

	stale := r.Clone()
	stale.Version++
	assert.ErrorIs(t, s.UpdateDay(ctx, stale), daybook.ErrConcurrentUpdate)

	lock(t, s, r.ID)
	locked, _ := s.GetDay(ctx, r.ID)
	locked.Version++
	assert.ErrorIs(t, s.UpdateDay(ctx, locked), daybook.ErrDayLocked)
}

func TestTransitionDayWritesAudit(t *testing.T) {
	s := New()
	r := newDay(t, s, "o1", date)

	next := r.Clone()
	next.Status = day.StatusSubmitted
	next.Version++
	require.NoError(t, s.TransitionDay(ctx, next, day.StatusOpen, entry(audit.ActionDaySubmit, r.ID.String())))

	// A second writer staged from the same snapshot loses.
	assert.ErrorIs(t, s.TransitionDay(ctx, next, day.StatusOpen, entry(audit.ActionDaySubmit, r.ID.String())), daybook.ErrConcurrentUpdate)

	entries, err := s.ListAudit(ctx, audit.ListOpts{EntityID: r.ID.String()})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a refused transition leaves no audit row")
}

func TestPostTransaction(t *testing.T) {
	s := New()
	r := newDay(t, s, "o1", date)

	first, created, err := s.PostTransaction(ctx, newTxn(r, "k1", 500), nil)
	require.NoError(t, err)
	assert.True(t, created)

	replay, created, err := s.PostTransaction(ctx, newTxn(r, "k1", 999), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, replay, "a replay returns the stored original")

	_, _, err = s.PostTransaction(ctx, newTxn(r, "k2", 250), nil)
	require.NoError(t, err)

	got, _ := s.GetDay(ctx, r.ID)
	assert.Equal(t, 2, got.Totals.Count)
	assert.Equal(t, types.Rupees(750), got.Totals.CashIn)
	assert.Equal(t, int64(3), got.Version)

	txns, err := s.ListTransactions(ctx, transaction.ListOpts{DayID: r.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	byKey, err := s.GetTransactionByKey(ctx, "o1", "k2")
	require.NoError(t, err)
	assert.Equal(t, types.Rupees(250), byKey.Amount)
	_, err = s.GetTransactionByKey(ctx, "o2", "k2")
	assert.ErrorIs(t, err, daybook.ErrTransactionNotFound)
}

func TestPostTransactionGuards(t *testing.T) {
	s := New()
	r := newDay(t, s, "o1", date)
	lock(t, s, r.ID)

	_, _, err := s.PostTransaction(ctx, newTxn(r, "k1", 100), nil)
	assert.ErrorIs(t, err, daybook.ErrDayLocked)

	month := period.MonthOf(date)
	require.NoError(t, s.ClosePeriod(ctx, &period.Period{ID: id.NewPeriodID(), Month: month, Status: period.StatusClosed}, nil))

	other := newDay(t, s, "o2", date)
	_, _, err = s.PostTransaction(ctx, newTxn(other, "k1", 100), nil)
	assert.ErrorIs(t, err, daybook.ErrPeriodClosed)
}

func TestClosePeriod(t *testing.T) {
	s := New()
	month := period.MonthOf(date)
	r := newDay(t, s, "o1", date)
	p := &period.Period{ID: id.NewPeriodID(), Month: month, Status: period.StatusClosed}

	assert.ErrorIs(t, s.ClosePeriod(ctx, p, nil), daybook.ErrPeriodNotReady)
	_, err := s.GetPeriod(ctx, month)
	assert.ErrorIs(t, err, daybook.ErrPeriodNotFound, "a refused closure leaves no row")

	lock(t, s, r.ID)
	require.NoError(t, s.ClosePeriod(ctx, p, entry(audit.ActionPeriodClose, string(month))))
	assert.ErrorIs(t, s.ClosePeriod(ctx, p, nil), daybook.ErrPeriodClosed)

	// Nothing in a closed month moves, not even an unlock.
	locked, _ := s.GetDay(ctx, r.ID)
	locked.Status = day.StatusOpen
	locked.Version++
	assert.ErrorIs(t, s.TransitionDay(ctx, locked, day.StatusLocked, nil), daybook.ErrPeriodClosed)
}

func TestLastLockedDayAndSync(t *testing.T) {
	s := New()
	d1 := newDay(t, s, "o1", types.AddDays(date, -2))
	d2 := newDay(t, s, "o1", types.AddDays(date, -1))
	newDay(t, s, "o1", date)
	lock(t, s, d1.ID)

	last, err := s.LastLockedDay(ctx, "o1", date)
	require.NoError(t, err)
	assert.Equal(t, d1.ID, last.ID)

	_, err = s.LastLockedDay(ctx, "o1", d1.Date)
	assert.ErrorIs(t, err, daybook.ErrDayNotFound)

	assert.ErrorIs(t, s.MarkSynced(ctx, d2.ID, now), daybook.ErrDayNotLocked)
	require.NoError(t, s.MarkSynced(ctx, d1.ID, now))
	require.NoError(t, s.MarkSynced(ctx, d1.ID, now.Add(time.Hour)), "marking twice is a no-op")

	unsynced, err := s.ListDays(ctx, day.ListOpts{Unsynced: true})
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	synced, _ := s.GetDay(ctx, d1.ID)
	require.NotNil(t, synced.SyncedAt)
	assert.Equal(t, now, *synced.SyncedAt)
}

func TestAnomalyDedupe(t *testing.T) {
	s := New()
	a := &anomaly.Anomaly{
		ID:         id.NewAnomalyID(),
		OutletID:   "o1",
		RuleType:   anomaly.RuleCashSpike,
		Severity:   anomaly.SeverityCritical,
		Bucket:     "txn:x",
		DedupeKey:  anomaly.DedupeKey(anomaly.RuleCashSpike, "o1", "txn:x"),
		DetectedAt: now,
		Status:     anomaly.StatusOpen,
	}
	_, created, err := s.RecordAnomaly(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *a
	dup.ID = id.NewAnomalyID()
	stored, created, err := s.RecordAnomaly(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, stored.ID)

	all, err := s.ListAnomalies(ctx, anomaly.ListOpts{OutletID: "o1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	resolved := *stored
	resolved.Status = anomaly.StatusResolved
	require.NoError(t, s.ResolveAnomaly(ctx, &resolved, entry(audit.ActionAnomalyResolve, a.ID.String())))
	assert.ErrorIs(t, s.ResolveAnomaly(ctx, &resolved, nil), daybook.ErrConcurrentUpdate)

	open, _ := s.ListAnomalies(ctx, anomaly.ListOpts{Status: anomaly.StatusOpen})
	assert.Empty(t, open)
}

func TestRecommendationPerDay(t *testing.T) {
	s := New()
	rec := &anomaly.Recommendation{ID: id.NewRecommendationID(), OutletID: "o1", Date: date, Status: anomaly.RecommendationPending, CreatedAt: now}
	_, created, err := s.CreateRecommendation(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	again := *rec
	again.ID = id.NewRecommendationID()
	stored, created, err := s.CreateRecommendation(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, stored.ID)

	got, err := s.GetRecommendationFor(ctx, "o1", date)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	got.Status = anomaly.RecommendationDismissed
	require.NoError(t, s.DecideRecommendation(ctx, got, nil))
	assert.ErrorIs(t, s.DecideRecommendation(ctx, got, nil), daybook.ErrConcurrentUpdate)
}

func TestPingAfterClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(ctx), daybook.ErrStoreClosed)
}
