package daybook_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/closure"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/store/memory"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

const outlet = "outlet-12"

var (
	ctx = context.Background()

	// 12:00 in Asia/Kolkata.
	noon  = time.Date(2025, time.March, 14, 6, 30, 0, 0, time.UTC)
	today = types.Date(2025, time.March, 14)

	staff   = access.Actor{ID: "u-staff", Role: access.RoleOutletStaff}
	manager = access.Actor{ID: "u-manager", Role: access.RoleOutletManager}
	ho      = access.Actor{ID: "u-ho", Role: access.RoleHOAccountant}
	auditor = access.Actor{ID: "u-audit", Role: access.RoleAuditor}

	sales    = &transaction.Account{Code: "4000", Type: transaction.AccountIncome}
	payables = &transaction.Account{Code: "2000", Type: transaction.AccountLiability}
)

type harness struct {
	eng   *daybook.Engine
	store *memory.Store
	clock *clock.Fixed
}

func newHarness(t *testing.T, at time.Time) *harness {
	t.Helper()
	s := memory.New()
	clk := clock.NewFixed(at)
	eng, err := daybook.New(s,
		daybook.WithClock(clk),
		daybook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() { _ = eng.Stop() })
	return &harness{eng: eng, store: s, clock: clk}
}

// input is a staff cash sale of amount at the outlet's current date.
func input(key string, amount int64) daybook.PostTransactionInput {
	return daybook.PostTransactionInput{
		OutletID:       outlet,
		Type:           transaction.TypeIncome,
		Category:       "sales",
		PaymentMode:    transaction.ModeCash,
		Amount:         amount,
		Actor:          staff,
		IdempotencyKey: key,
	}
}

func (h *harness) post(t *testing.T, in daybook.PostTransactionInput) *transaction.Transaction {
	t.Helper()
	if in.OutletID == "" {
		in.OutletID = outlet
	}
	if in.Type == "" {
		in.Type = transaction.TypeIncome
	}
	if in.Category == "" {
		in.Category = "sales"
	}
	if in.PaymentMode == "" {
		in.PaymentMode = transaction.ModeCash
	}
	if in.Actor.ID == "" {
		in.Actor = staff
	}
	txn, err := h.eng.PostTransaction(ctx, in)
	require.NoError(t, err)
	return txn
}

// open creates the outlet's current day and sets its opening balances
// unless they were carried forward.
func (h *harness) open(t *testing.T, cash, upi int64) *day.Record {
	t.Helper()
	rec, err := h.eng.OpenDay(ctx, outlet, h.eng.Today(), manager)
	require.NoError(t, err)
	if !rec.OpeningSet {
		rec, err = h.eng.SetOpeningBalance(ctx, rec.ID, cash, upi, manager)
		require.NoError(t, err)
	}
	return rec
}

// closeOut records the tally of an opened and posted day and locks it.
func (h *harness) closeOut(t *testing.T, dayID id.DayID, physicalCash, physicalUPI int64) *day.Record {
	t.Helper()
	_, err := h.eng.SetPhysicalTally(ctx, dayID, physicalCash, physicalUPI, "", manager)
	require.NoError(t, err)
	locked, err := h.eng.TransitionDay(ctx, daybook.TransitionInput{DayID: dayID, Target: day.StatusLocked, Actor: manager})
	require.NoError(t, err)
	return locked
}

func TestPostingToLockedDayIsDenied(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k1"})
	h.closeOut(t, txn.DayID, 500_00, 0)

	_, err := h.eng.PostTransaction(ctx, input("k2", 100_00))
	var gd *daybook.GateDenied
	require.ErrorAs(t, err, &gd)
	assert.Equal(t, "day locked", gd.Reason)

	txns, err := h.eng.Transactions(ctx, transaction.ListOpts{OutletID: outlet})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestPostingValidation(t *testing.T) {
	h := newHarness(t, noon)

	tests := []struct {
		name  string
		in    daybook.PostTransactionInput
		field string
	}{
		{"zero amount", daybook.PostTransactionInput{Amount: 0, IdempotencyKey: "a"}, "amount"},
		{"missing key", daybook.PostTransactionInput{Amount: 100}, "idempotency_key"},
		{"bad mode", daybook.PostTransactionInput{Amount: 100, IdempotencyKey: "b", PaymentMode: "cheque"}, "payment_mode"},
		{"over limit", daybook.PostTransactionInput{Amount: 2_00_00_000_00, IdempotencyKey: "c"}, "amount"},
		{"unmapped account", daybook.PostTransactionInput{
			Amount:         100,
			IdempotencyKey: "d",
			Account:        &transaction.Account{Code: "4000", Type: "revenue"},
		}, "account.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.OutletID = outlet
			in.Type = transaction.TypeIncome
			in.Category = "sales"
			if in.PaymentMode == "" {
				in.PaymentMode = transaction.ModeCash
			}
			in.Actor = staff

			_, err := h.eng.PostTransaction(ctx, in)
			var ve *daybook.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPostingGate(t *testing.T) {
	h := newHarness(t, noon)

	future := input("future", 100_00)
	future.Date = types.AddDays(today, 1)
	_, err := h.eng.PostTransaction(ctx, future)
	var gd *daybook.GateDenied
	require.ErrorAs(t, err, &gd)
	assert.Equal(t, "future date", gd.Reason)

	old := input("old", 100_00)
	old.Date = types.AddDays(today, -3)
	_, err = h.eng.PostTransaction(ctx, old)
	require.ErrorAs(t, err, &gd)
	assert.Equal(t, "backdate window expired", gd.Reason)

	// The manager's window reaches further back.
	old.Actor = manager
	_, err = h.eng.PostTransaction(ctx, old)
	require.NoError(t, err)

	ro := input("ro", 100_00)
	ro.Actor = auditor
	_, err = h.eng.PostTransaction(ctx, ro)
	require.ErrorAs(t, err, &gd)
	assert.Equal(t, "read-only role", gd.Reason)
}

func TestIdempotentPosting(t *testing.T) {
	h := newHarness(t, noon)
	in := daybook.PostTransactionInput{Amount: 750_00, IdempotencyKey: "pos-88412"}

	first := h.post(t, in)
	h.clock.Advance(time.Minute)
	second := h.post(t, in)
	assert.Equal(t, first, second)

	// Same key, different payload: the original wins.
	in.Amount = 999_00
	third := h.post(t, in)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, int64(750_00), third.Amount.Amount)

	txns, err := h.eng.Transactions(ctx, transaction.ListOpts{OutletID: outlet})
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	rec, err := h.eng.Day(ctx, first.DayID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Totals.Count)
}

func TestConcurrentPostingsWithOneKey(t *testing.T) {
	h := newHarness(t, noon)
	const callers = 16

	var wg sync.WaitGroup
	got := make([]*transaction.Transaction, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = h.eng.PostTransaction(ctx, input("pos-race", 250_00))
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, got[0], got[i])
	}

	txns, err := h.eng.Transactions(ctx, transaction.ListOpts{OutletID: outlet})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, got[0].ID, txns[0].ID)

	rec, err := h.eng.Day(ctx, got[0].DayID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Totals.Count)
	assert.Equal(t, int64(250_00), rec.Totals.Income.Amount)
}

func TestConcurrentLocksCommitOnce(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})
	_, err := h.eng.SetPhysicalTally(ctx, txn.DayID, 500_00, 0, "", manager)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.eng.TransitionDay(ctx, daybook.TransitionInput{DayID: txn.DayID, Target: day.StatusLocked, Actor: manager})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, daybook.IsTransition(err), "%v", err)
	}
	assert.Equal(t, 1, succeeded)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{EntityID: txn.DayID.String(), Action: audit.ActionDayLock})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	state, err := h.eng.DayState(ctx, outlet, today)
	require.NoError(t, err)
	assert.Equal(t, day.StatusLocked, state)
}

func TestReconciliationExample(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 1000_00, 500_00)
	sale := h.post(t, daybook.PostTransactionInput{Amount: 2000_00, IdempotencyKey: "sale"})
	h.post(t, daybook.PostTransactionInput{
		Type:           transaction.TypeExpense,
		Category:       "supplies",
		Amount:         300_00,
		IdempotencyKey: "exp",
	})

	_, err := h.eng.SetPhysicalTally(ctx, sale.DayID, 2700_00, 500_00, "", manager)
	require.NoError(t, err)

	res, err := h.eng.Reconciliation(ctx, outlet, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2700_00), res.ExpectedCash.Amount)
	assert.Equal(t, int64(0), res.Variance.Amount)
	assert.Equal(t, reconcile.Perfect, res.Class)
	assert.False(t, res.Mismatch)

	_, err = h.eng.SetOpeningBalance(ctx, sale.DayID, 5_00, 0, manager)
	assert.True(t, daybook.IsValidation(err))
}

func TestOpeningBalanceFixedOnceDayHasTransactions(t *testing.T) {
	h := newHarness(t, noon)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})

	rec, err := h.eng.Day(ctx, txn.DayID)
	require.NoError(t, err)
	assert.True(t, rec.OpeningSet)
	assert.Equal(t, int64(0), rec.OpeningCash.Amount)

	_, err = h.eng.SetOpeningBalance(ctx, txn.DayID, 12345_00, 0, manager)
	var ve *daybook.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "opening_balance", ve.Field)
	assert.Equal(t, "cannot change after the first transaction", ve.Message)

	rec, err = h.eng.Day(ctx, txn.DayID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.OpeningCash.Amount)

	res, err := h.eng.Reconciliation(ctx, outlet, today)
	require.NoError(t, err)
	assert.Equal(t, int64(500_00), res.ExpectedCash.Amount)

	locked := h.closeOut(t, txn.DayID, 500_00, 0)
	assert.Equal(t, day.StatusLocked, locked.Status)
}

func TestOpenDayBeforeFirstPosting(t *testing.T) {
	h := newHarness(t, noon)
	rec, err := h.eng.OpenDay(ctx, outlet, today, manager)
	require.NoError(t, err)
	assert.False(t, rec.OpeningSet)

	rec, err = h.eng.SetOpeningBalance(ctx, rec.ID, 1000_00, 250_00, manager)
	require.NoError(t, err)
	assert.Equal(t, int64(1000_00), rec.OpeningCash.Amount)

	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})
	assert.Equal(t, rec.ID, txn.DayID)

	got, err := h.eng.Day(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000_00), got.OpeningCash.Amount)
	assert.Equal(t, int64(250_00), got.OpeningUPI.Amount)
}

func TestLockRequiresTallyComment(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 1000_00, IdempotencyKey: "k"})
	_, err := h.eng.SetPhysicalTally(ctx, txn.DayID, 990_00, 0, "", manager)
	require.NoError(t, err)

	_, err = h.eng.TransitionDay(ctx, daybook.TransitionInput{DayID: txn.DayID, Target: day.StatusLocked, Actor: manager})
	assert.True(t, daybook.IsTransition(err))

	_, err = h.eng.SetPhysicalTally(ctx, txn.DayID, 990_00, 0, "short by ten", manager)
	require.NoError(t, err)
	rec, err := h.eng.TransitionDay(ctx, daybook.TransitionInput{DayID: txn.DayID, Target: day.StatusLocked, Actor: manager})
	require.NoError(t, err)
	assert.Equal(t, day.StatusLocked, rec.Status)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{EntityID: txn.DayID.String(), Action: audit.ActionDayLock})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.SeverityWarning, entries[0].Severity)
}

func TestShortUnlockReasonLeavesDayLocked(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})
	h.closeOut(t, txn.DayID, 500_00, 0)

	_, err := h.eng.TransitionDay(ctx, daybook.TransitionInput{
		DayID:  txn.DayID,
		Target: day.StatusOpen,
		Actor:  ho,
		Reason: "typo",
	})
	var ve *daybook.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reason", ve.Field)

	state, err := h.eng.DayState(ctx, outlet, today)
	require.NoError(t, err)
	assert.Equal(t, day.StatusLocked, state)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{EntityID: txn.DayID.String(), Action: audit.ActionDayUnlock})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditEntryPerTransition(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})

	_, err := h.eng.TransitionDay(ctx, daybook.TransitionInput{OutletID: outlet, Date: today, Target: day.StatusSubmitted, Actor: staff})
	require.NoError(t, err)
	_, err = h.eng.SetPhysicalTally(ctx, txn.DayID, 500_00, 0, "", manager)
	require.NoError(t, err)
	_, err = h.eng.TransitionDay(ctx, daybook.TransitionInput{DayID: txn.DayID, Target: day.StatusLocked, Actor: manager})
	require.NoError(t, err)
	rec, err := h.eng.TransitionDay(ctx, daybook.TransitionInput{
		DayID:  txn.DayID,
		Target: day.StatusOpen,
		Actor:  ho,
		Reason: "cash count corrected by area manager",
	})
	require.NoError(t, err)
	assert.Equal(t, day.StatusOpen, rec.Status)
	assert.Equal(t, "cash count corrected by area manager", rec.UnlockReason)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{EntityID: txn.DayID.String()})
	require.NoError(t, err)
	counts := make(map[audit.Action]int)
	for _, e := range entries {
		counts[e.Action]++
	}
	assert.Equal(t, map[audit.Action]int{
		audit.ActionDaySubmit: 1,
		audit.ActionDayLock:   1,
		audit.ActionDayUnlock: 1,
	}, counts)

	adj := input("adj", 50_00)
	adj.IsManual = true
	adj.Note = "till float"
	adj.Actor = manager
	manual := h.post(t, adj)
	entries, err = h.eng.ListAudit(ctx, audit.ListOpts{EntityID: manual.ID.String()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionManualJournal, entries[0].Action)
}

func TestTotalsMatchTransactions(t *testing.T) {
	h := newHarness(t, noon)
	h.post(t, daybook.PostTransactionInput{Amount: 1200_00, IdempotencyKey: "1"})
	h.post(t, daybook.PostTransactionInput{Amount: 800_00, IdempotencyKey: "2", PaymentMode: transaction.ModeUPI})
	tea := input("3", 150_00)
	tea.Type = transaction.TypeExpense
	tea.Category = "tea"
	h.post(t, tea)
	refund := input("4", 90_00)
	refund.IsReversal = true
	refund.Category = "refund"
	txn := h.post(t, refund)

	rec, err := h.eng.Day(ctx, txn.DayID)
	require.NoError(t, err)
	txns, err := h.eng.Transactions(ctx, transaction.ListOpts{DayID: txn.DayID})
	require.NoError(t, err)

	assert.Equal(t, day.Compute(types.DefaultCurrency, txns), rec.Totals)
	assert.Equal(t, 4, rec.Totals.Count)
}

func TestCashSpikeRaisedOnce(t *testing.T) {
	h := newHarness(t, noon)
	h.post(t, daybook.PostTransactionInput{Amount: 60_000_00, IdempotencyKey: "spike"})

	_, err := h.eng.ScanAnomalies(ctx, outlet, today, today)
	require.NoError(t, err)
	_, err = h.eng.ScanAnomalies(ctx, outlet, today, today)
	require.NoError(t, err)

	found, err := h.eng.ListAnomalies(ctx, anomaly.ListOpts{OutletID: outlet, RuleType: anomaly.RuleCashSpike})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, anomaly.SeverityCritical, found[0].Severity)
	assert.Equal(t, anomaly.StatusOpen, found[0].Status)

	resolved, err := h.eng.ResolveAnomaly(ctx, found[0].ID, manager, "owner deposited festival takings")
	require.NoError(t, err)
	assert.Equal(t, anomaly.StatusResolved, resolved.Status)

	_, err = h.eng.ResolveAnomaly(ctx, found[0].ID, manager, "again")
	assert.True(t, daybook.IsTransition(err))

	all, err := h.eng.ListAnomalies(ctx, anomaly.ListOpts{OutletID: outlet, RuleType: anomaly.RuleCashSpike})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEscalationRecommendsLock(t *testing.T) {
	h := newHarness(t, noon)
	for i := 0; i < 3; i++ {
		h.post(t, daybook.PostTransactionInput{Amount: 60_000_00, IdempotencyKey: fmt.Sprintf("spike-%d", i)})
		h.clock.Advance(time.Minute)
	}

	recs, err := h.eng.ListRecommendations(ctx, anomaly.RecommendationListOpts{OutletID: outlet})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, anomaly.RecommendationPending, recs[0].Status)
	assert.Len(t, recs[0].AnomalyIDs, 3)
	assert.True(t, types.SameDate(today, recs[0].Date))

	applied, err := h.eng.ApplyRecommendation(ctx, recs[0].ID, manager)
	require.NoError(t, err)
	assert.Equal(t, anomaly.RecommendationApplied, applied.Status)

	rec, err := h.eng.Day(ctx, mustDay(t, h).ID)
	require.NoError(t, err)
	assert.Equal(t, day.StatusLocked, rec.Status)
	assert.Equal(t, day.CauseAutoEscalation, rec.LockCause)

	// A fourth critical on an earlier day changes nothing once today is locked.
	late := input("spike-late", 60_000_00)
	late.Date = types.AddDays(today, -1)
	late.Actor = manager
	h.post(t, late)
	recs, err = h.eng.ListRecommendations(ctx, anomaly.RecommendationListOpts{OutletID: outlet})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestEscalationSkipsLockedDay(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 100_00, IdempotencyKey: "small"})
	h.closeOut(t, txn.DayID, 100_00, 0)

	yesterday := types.AddDays(today, -1)
	for i := 0; i < 3; i++ {
		in := input(fmt.Sprintf("spike-%d", i), 60_000_00)
		in.Date = yesterday
		in.Actor = manager
		h.post(t, in)
	}

	crit, err := h.eng.ListAnomalies(ctx, anomaly.ListOpts{OutletID: outlet, Severity: anomaly.SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, crit, 3)

	recs, err := h.eng.ListRecommendations(ctx, anomaly.RecommendationListOpts{OutletID: outlet})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDismissRecommendation(t *testing.T) {
	h := newHarness(t, noon)
	for i := 0; i < 3; i++ {
		h.post(t, daybook.PostTransactionInput{Amount: 60_000_00, IdempotencyKey: fmt.Sprintf("spike-%d", i)})
	}
	recs, err := h.eng.ListRecommendations(ctx, anomaly.RecommendationListOpts{OutletID: outlet})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = h.eng.DismissRecommendation(ctx, recs[0].ID, manager, "known event")
	assert.True(t, daybook.IsTransition(err))

	dismissed, err := h.eng.DismissRecommendation(ctx, recs[0].ID, ho, "wedding order paid in cash")
	require.NoError(t, err)
	assert.Equal(t, anomaly.RecommendationDismissed, dismissed.Status)

	state, err := h.eng.DayState(ctx, outlet, today)
	require.NoError(t, err)
	assert.Equal(t, day.StatusOpen, state)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{Action: audit.ActionRecommendationDismiss})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = h.eng.ApplyRecommendation(ctx, recs[0].ID, manager)
	assert.True(t, daybook.IsTransition(err))
}

func TestClosureListsOpenDay(t *testing.T) {
	h := newHarness(t, time.Date(2025, time.May, 2, 6, 30, 0, 0, time.UTC))
	april := period.Month("2025-04")

	for d := april.Start(); !d.After(april.End()); d = types.AddDays(d, 1) {
		rec := day.NewRecord(outlet, d, types.DefaultCurrency, noon)
		if d.Day() != 17 {
			rec.Status = day.StatusLocked
		}
		require.NoError(t, h.store.CreateDay(ctx, rec))
	}

	_, err := h.eng.ClosePeriod(ctx, april, ho)
	var cf *daybook.ChecklistFailed
	require.ErrorAs(t, err, &cf)

	var daysLocked *closure.Check
	for i := range cf.Failed {
		if cf.Failed[i].Name == closure.CheckDaysLocked {
			daysLocked = &cf.Failed[i]
		}
	}
	require.NotNil(t, daysLocked)
	require.Len(t, daysLocked.Details, 1)
	assert.Contains(t, daysLocked.Details[0], "2025-04-17")

	_, err = h.store.GetPeriod(ctx, april)
	assert.True(t, daybook.IsNotFound(err))
}

func TestClosePeriod(t *testing.T) {
	h := newHarness(t, time.Date(2025, time.March, 31, 6, 30, 0, 0, time.UTC))
	march := period.Month("2025-03")

	h.open(t, 2000_00, 500_00)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 1500_00, IdempotencyKey: "s1", Account: sales})
	h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "s2", Account: sales, PaymentMode: transaction.ModeUPI})
	h.post(t, daybook.PostTransactionInput{
		Type:           transaction.TypeExpense,
		Category:       "supplier",
		Amount:         1500_00,
		IdempotencyKey: "p1",
		Account:        payables,
	})
	h.post(t, daybook.PostTransactionInput{
		Type:           transaction.TypeExpense,
		Category:       "sales return",
		PaymentMode:    transaction.ModeUPI,
		Amount:         500_00,
		IdempotencyKey: "r1",
		Account:        sales,
	})
	h.closeOut(t, txn.DayID, 2000_00, 500_00)

	_, err := h.eng.ClosePeriod(ctx, march, manager)
	assert.True(t, daybook.IsTransition(err))

	res, err := h.eng.CanClose(ctx, march)
	require.NoError(t, err)
	require.True(t, res.OK, "%+v", res.Failed)

	p, err := h.eng.ClosePeriod(ctx, march, ho)
	require.NoError(t, err)
	assert.Equal(t, period.StatusClosed, p.Status)
	assert.NotEmpty(t, p.SnapshotHash)
	require.NotNil(t, p.Snapshot)
	assert.Equal(t, int64(2000_00), p.Snapshot.TotalIncome)
	assert.Equal(t, int64(2000_00), p.Snapshot.TotalExpense)
	assert.True(t, p.Snapshot.TrialBalance.Balanced(1))

	ok, err := h.eng.VerifyClosure(ctx, march)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.eng.ClosePeriod(ctx, march, ho)
	var te *daybook.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "period already closed", te.Reason)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{Action: audit.ActionPeriodClose})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Back-dated posting into the closed month is refused.
	h.clock.Set(time.Date(2025, time.April, 1, 6, 30, 0, 0, time.UTC))
	late := input("late", 100_00)
	late.Date = types.Date(2025, time.March, 31)
	late.Actor = ho
	_, err = h.eng.PostTransaction(ctx, late)
	var gd *daybook.GateDenied
	require.ErrorAs(t, err, &gd)
	assert.Equal(t, "period closed", gd.Reason)

	// Unlocking a day of a closed month is refused too.
	_, err = h.eng.TransitionDay(ctx, daybook.TransitionInput{
		DayID:  txn.DayID,
		Target: day.StatusOpen,
		Actor:  ho,
		Reason: "reopen for correction please",
	})
	assert.True(t, daybook.IsTransition(err))

	h.post(t, daybook.PostTransactionInput{Amount: 100_00, IdempotencyKey: "april"})
}

func TestClosePeriodRefusesUnbalancedBooks(t *testing.T) {
	h := newHarness(t, time.Date(2025, time.March, 31, 6, 30, 0, 0, time.UTC))
	march := period.Month("2025-03")

	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 1500_00, IdempotencyKey: "s1", Account: sales})
	h.closeOut(t, txn.DayID, 1500_00, 0)

	res, err := h.eng.CanClose(ctx, march)
	require.NoError(t, err)
	assert.False(t, res.OK)

	_, err = h.eng.ClosePeriod(ctx, march, ho)
	var cf *daybook.ChecklistFailed
	require.ErrorAs(t, err, &cf)
	require.Len(t, cf.Failed, 1)
	assert.Equal(t, closure.CheckTrialBalance, cf.Failed[0].Name)
	assert.Contains(t, cf.Failed[0].Message, "differ by")

	_, err = h.store.GetPeriod(ctx, march)
	assert.True(t, daybook.IsNotFound(err))
}

func TestDayDetailReadGate(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})
	h.closeOut(t, txn.DayID, 500_00, 0)

	_, err := h.eng.DayDetail(ctx, daybook.DayDetailInput{OutletID: outlet, Date: today, Actor: auditor})
	assert.True(t, daybook.IsGateDenied(err))

	detail, err := h.eng.DayDetail(ctx, daybook.DayDetailInput{OutletID: outlet, Date: today, Actor: auditor, HasReadGrant: true})
	require.NoError(t, err)
	assert.Len(t, detail.Transactions, 1)
	assert.Equal(t, reconcile.Perfect, detail.Reconciliation.Class)

	detail, err = h.eng.DayDetail(ctx, daybook.DayDetailInput{OutletID: outlet, Date: today, Actor: manager})
	require.NoError(t, err)
	assert.Equal(t, day.StatusLocked, detail.Record.Status)
}

func TestSpreadsheetSync(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "k"})
	h.closeOut(t, txn.DayID, 500_00, 0)

	pending, err := h.eng.ListUnsyncedLocked(ctx, outlet, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, h.eng.MarkSynced(ctx, txn.DayID))
	require.NoError(t, h.eng.MarkSynced(ctx, txn.DayID))

	pending, err = h.eng.ListUnsyncedLocked(ctx, outlet, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOpeningCarriedFromLastLockedDay(t *testing.T) {
	h := newHarness(t, noon)
	h.open(t, 0, 0)
	txn := h.post(t, daybook.PostTransactionInput{Amount: 500_00, IdempotencyKey: "d1"})
	h.post(t, daybook.PostTransactionInput{Amount: 120_00, IdempotencyKey: "d2", PaymentMode: transaction.ModeUPI})
	h.closeOut(t, txn.DayID, 500_00, 120_00)

	h.clock.Advance(24 * time.Hour)
	next, err := h.eng.OpenDay(ctx, outlet, types.AddDays(today, 1), staff)
	require.NoError(t, err)
	assert.True(t, next.OpeningSet)
	assert.Equal(t, int64(500_00), next.OpeningCash.Amount)
	assert.Equal(t, int64(120_00), next.OpeningUPI.Amount)

	again, err := h.eng.OpenDay(ctx, outlet, types.AddDays(today, 1), staff)
	require.NoError(t, err)
	assert.Equal(t, next.ID, again.ID)
}

func mustDay(t *testing.T, h *harness) *day.Record {
	t.Helper()
	rec, err := h.store.GetDayByDate(ctx, outlet, today)
	require.NoError(t, err)
	return rec
}

func TestOriginCorrelation(t *testing.T) {
	h := newHarness(t, noon)
	octx := daybook.WithOrigin(ctx, audit.Origin{IP: "10.0.0.7", CorrelationID: "req-42"})
	in := input("manual", 10_00)
	in.Category = "adjustment"
	in.Actor = manager
	in.IsManual = true
	txn, err := h.eng.PostTransaction(octx, in)
	require.NoError(t, err)

	entries, err := h.eng.ListAudit(ctx, audit.ListOpts{EntityID: txn.ID.String()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].Origin.CorrelationID)
	assert.Equal(t, "10.0.0.7", entries[0].Origin.IP)
}
