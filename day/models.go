// Package day models one outlet's business day and the state machine that
// governs it.
package day

import (
	"time"

	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Status is the lifecycle state of a business day.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSubmitted Status = "submitted"
	StatusLocked    Status = "locked"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusSubmitted || s == StatusLocked
}

// CauseAutoEscalation tags locks that were applied from an anomaly
// escalation recommendation.
const CauseAutoEscalation = "auto anomaly escalation"

// Totals is the denormalized running sum of a day's transactions. It is a
// cache over the transaction set and can always be rebuilt with Compute.
type Totals struct {
	Income  types.Money `json:"total_income"`
	Expense types.Money `json:"total_expense"`
	CashIn  types.Money `json:"cash_in"`
	CashOut types.Money `json:"cash_out"`
	UPIIn   types.Money `json:"upi_in"`
	UPIOut  types.Money `json:"upi_out"`
	Count   int         `json:"transaction_count"`
}

// NewTotals returns zero totals in currency.
func NewTotals(currency string) Totals {
	z := types.Zero(currency)
	return Totals{Income: z, Expense: z, CashIn: z, CashOut: z, UPIIn: z, UPIOut: z}
}

// Apply folds one transaction into the totals.
func (t *Totals) Apply(txn *transaction.Transaction) {
	t.Count++
	switch txn.Type {
	case transaction.TypeIncome:
		t.Income = t.Income.Add(txn.Amount)
		switch txn.PaymentMode {
		case transaction.ModeCash:
			t.CashIn = t.CashIn.Add(txn.Amount)
		case transaction.ModeUPI:
			t.UPIIn = t.UPIIn.Add(txn.Amount)
		}
	case transaction.TypeExpense:
		t.Expense = t.Expense.Add(txn.Amount)
		switch txn.PaymentMode {
		case transaction.ModeCash:
			t.CashOut = t.CashOut.Add(txn.Amount)
		case transaction.ModeUPI:
			t.UPIOut = t.UPIOut.Add(txn.Amount)
		}
	}
}

// Compute rebuilds totals from the authoritative transaction set.
func Compute(currency string, txns []*transaction.Transaction) Totals {
	t := NewTotals(currency)
	for _, txn := range txns {
		t.Apply(txn)
	}
	return t
}

// Record is the DailyRecord for one (outlet, business date).
type Record struct {
	types.Entity
	ID       id.DayID  `json:"id"`
	OutletID string    `json:"outlet_id"`
	Date     time.Time `json:"business_date"`
	Currency string    `json:"currency"`
	Status   Status    `json:"status"`

	OpeningCash types.Money `json:"opening_cash"`
	OpeningUPI  types.Money `json:"opening_upi"`
	OpeningSet  bool        `json:"opening_set"`

	Totals Totals `json:"totals"`

	PhysicalCash types.Money `json:"physical_cash"`
	PhysicalUPI  types.Money `json:"physical_upi"`
	TallySet     bool        `json:"tally_set"`
	TallyComment string      `json:"tally_comment,omitempty"`

	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	LockedBy     string     `json:"locked_by,omitempty"`
	LockCause    string     `json:"lock_cause,omitempty"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
	UnlockedBy   string     `json:"unlocked_by,omitempty"`
	UnlockReason string     `json:"unlock_reason,omitempty"`

	// SyncedAt is set by the spreadsheet export once it has copied the
	// locked day. Unlocking clears it.
	SyncedAt *time.Time `json:"synced_at,omitempty"`

	Version int64 `json:"version"`
}

// NewRecord returns a fresh open day.
func NewRecord(outletID string, date time.Time, currency string, now time.Time) *Record {
	z := types.Zero(currency)
	return &Record{
		Entity:       types.NewEntity(now),
		ID:           id.NewDayID(),
		OutletID:     outletID,
		Date:         types.DateOf(date),
		Currency:     currency,
		Status:       StatusOpen,
		OpeningCash:  z,
		OpeningUPI:   z,
		Totals:       NewTotals(currency),
		PhysicalCash: z,
		PhysicalUPI:  z,
		Version:      1,
	}
}

// Locked reports whether the day is frozen.
func (r *Record) Locked() bool { return r.Status == StatusLocked }

// Clone returns a deep copy so that callers can stage a change without
// touching the stored value.
func (r *Record) Clone() *Record {
	c := *r
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.LockedAt = cloneTime(r.LockedAt)
	c.UnlockedAt = cloneTime(r.UnlockedAt)
	c.SyncedAt = cloneTime(r.SyncedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ListOpts filters day queries. From and To are inclusive business dates.
type ListOpts struct {
	OutletID string
	From     time.Time
	To       time.Time
	Status   Status
	// Unsynced restricts the result to locked days not yet exported.
	Unsynced bool
	Limit    int
	Offset   int
}

// Matches reports whether r satisfies the filter.
func (o ListOpts) Matches(r *Record) bool {
	if o.OutletID != "" && r.OutletID != o.OutletID {
		return false
	}
	if !o.From.IsZero() && r.Date.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && r.Date.After(o.To) {
		return false
	}
	if o.Status != "" && r.Status != o.Status {
		return false
	}
	if o.Unsynced && (r.Status != StatusLocked || r.SyncedAt != nil) {
		return false
	}
	return true
}
