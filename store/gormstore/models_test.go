package gormstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

var now = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestDayRowKeepsTotalsAndStamps(t *testing.T) {
	r := day.NewRecord("o1", types.Date(2025, time.March, 14), types.DefaultCurrency, now)
	r.Totals.Apply(&transaction.Transaction{
		Type:        transaction.TypeIncome,
		PaymentMode: transaction.ModeUPI,
		Amount:      types.Rupees(120),
	})
	r.Status = day.StatusLocked
	r.LockedAt = &now
	r.LockedBy = "mgr-1"
	r.Version = 4

	m := toDayRow(r)
	assert.Equal(t, int64(120_00), m.UPIIn)
	assert.Equal(t, 1, m.TxnCount)
	assert.Nil(t, m.SyncedAt)

	got, err := fromDayRow(m)
	require.NoError(t, err)
	assert.Equal(t, r.ID.String(), got.ID.String())
	assert.Equal(t, r.Totals, got.Totals)
	assert.Equal(t, r.Date, got.Date)
	assert.Equal(t, day.StatusLocked, got.Status)
	require.NotNil(t, got.LockedAt)
	assert.True(t, now.Equal(*got.LockedAt))
	assert.Equal(t, int64(4), got.Version)
}

func TestDayRowNormalizesDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	m := toDayRow(day.NewRecord("o1", types.Date(2025, time.March, 14), "inr", now))
	m.Date = time.Date(2025, time.March, 14, 0, 0, 0, 0, ist)

	got, err := fromDayRow(m)
	require.NoError(t, err)
	assert.Equal(t, types.Date(2025, time.March, 14), got.Date)
}

func TestTxnRowAccount(t *testing.T) {
	txn := &transaction.Transaction{
		ID:             id.NewTransactionID(),
		OutletID:       "o1",
		Date:           types.Date(2025, time.March, 14),
		DayID:          id.NewDayID(),
		Type:           transaction.TypeExpense,
		Category:       "rent",
		PaymentMode:    transaction.ModeCash,
		Amount:         types.Rupees(300),
		CreatedBy:      "staff-1",
		CreatedAt:      now,
		IdempotencyKey: "k1",
	}

	got, err := fromTxnRow(toTxnRow(txn))
	require.NoError(t, err)
	assert.Nil(t, got.Account)
	assert.Equal(t, txn.DayID.String(), got.DayID.String())
	assert.Equal(t, txn.Amount, got.Amount)
	assert.Equal(t, "k1", got.IdempotencyKey)

	txn.Account = &transaction.Account{Code: "5000", Type: transaction.AccountExpense}
	got, err = fromTxnRow(toTxnRow(txn))
	require.NoError(t, err)
	require.NotNil(t, got.Account)
	assert.Equal(t, "5000", got.Account.Code)
	assert.True(t, got.Account.Mapped())
}

func TestTxnRowRejectsForeignID(t *testing.T) {
	m := toTxnRow(&transaction.Transaction{ID: id.NewTransactionID(), DayID: id.NewDayID()})
	m.DayID = id.NewAnomalyID().String()

	_, err := fromTxnRow(m)
	assert.Error(t, err)
}

func TestOpenPeriodRow(t *testing.T) {
	m := openPeriodRow(period.Month("2025-03"), now)

	p, err := fromPeriodRow(m)
	require.NoError(t, err)
	assert.False(t, p.Closed())
	assert.Equal(t, period.StatusOpen, p.Status)
	assert.Nil(t, p.Snapshot)
	assert.Equal(t, now, p.CreatedAt)
}

func TestAnomalyRowTransactionIDs(t *testing.T) {
	a := &anomaly.Anomaly{
		ID:             id.NewAnomalyID(),
		OutletID:       "o1",
		Date:           types.Date(2025, time.March, 14),
		RuleType:       anomaly.RuleCashSpike,
		Severity:       anomaly.SeverityCritical,
		DedupeKey:      anomaly.DedupeKey(anomaly.RuleCashSpike, "o1", "txn"),
		TransactionIDs: []id.TransactionID{id.NewTransactionID(), id.NewTransactionID()},
		DetectedAt:     now,
		Status:         anomaly.StatusOpen,
	}

	m := toAnomalyRow(a)
	require.Len(t, m.TransactionIDs, 2)

	got, err := fromAnomalyRow(m)
	require.NoError(t, err)
	require.Len(t, got.TransactionIDs, 2)
	assert.Equal(t, a.TransactionIDs[1].String(), got.TransactionIDs[1].String())
	assert.Equal(t, a.DedupeKey, got.DedupeKey)
	assert.Equal(t, anomaly.SeverityCritical, got.Severity)
}

func TestAuditRowSnapshots(t *testing.T) {
	e := &audit.Entry{
		ID:        id.NewAuditEntryID(),
		Actor:     access.Actor{ID: "ho-1", Role: access.RoleHOAccountant},
		Action:    audit.ActionPeriodClose,
		Entity:    audit.EntityPeriod,
		EntityID:  "2025-03",
		After:     json.RawMessage(`{"status":"CLOSED"}`),
		Severity:  audit.SeverityCritical,
		Timestamp: now,
		Origin:    audit.Origin{CorrelationID: "req-42"},
	}

	m := toAuditRow(e)
	assert.Empty(t, m.Before)

	got, err := fromAuditRow(m)
	require.NoError(t, err)
	assert.Nil(t, got.Before)
	assert.JSONEq(t, `{"status":"CLOSED"}`, string(got.After))
	assert.Equal(t, "req-42", got.Origin.CorrelationID)
	assert.Equal(t, access.RoleHOAccountant, got.Actor.Role)
}
