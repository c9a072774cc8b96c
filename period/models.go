// Package period models calendar-month accounting periods and their
// one-way closure.
package period

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/types"
)

// Status is the state of an accounting period. There is no transition out
// of StatusClosed.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Month identifies a calendar month as "YYYY-MM".
type Month string

const monthLayout = "2006-01"

// MonthOf returns the month containing business date d.
func MonthOf(d time.Time) Month {
	return Month(d.Format(monthLayout))
}

// ParseMonth validates s as a month key.
func ParseMonth(s string) (Month, error) {
	if _, err := time.Parse(monthLayout, s); err != nil {
		return "", fmt.Errorf("period: parse month %q: %w", s, err)
	}
	return Month(s), nil
}

// Start returns the first business date of the month.
func (m Month) Start() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return types.Date(t.Year(), t.Month(), 1)
}

// End returns the last business date of the month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

// Contains reports whether business date d falls inside the month.
func (m Month) Contains(d time.Time) bool {
	return MonthOf(d) == m
}

// Snapshot freezes the figures a period was closed on.
type Snapshot struct {
	Month             Month                  `json:"month"`
	Currency          string                 `json:"currency"`
	Days              int                    `json:"days"`
	Transactions      int                    `json:"transactions"`
	TotalIncome       int64                  `json:"total_income"`
	TotalExpense      int64                  `json:"total_expense"`
	OpeningCash       int64                  `json:"opening_cash"`
	ClosingCash       int64                  `json:"closing_cash"`
	OpeningUPI        int64                  `json:"opening_upi"`
	ClosingUPI        int64                  `json:"closing_upi"`
	TrialBalance      reconcile.TrialBalance `json:"trial_balance"`
	MajorVarianceDays int                    `json:"major_variance_days"`
}

// Hash returns the hex sha256 of the snapshot's canonical JSON form.
func (s Snapshot) Hash() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("period: hash snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Period is one calendar month's accounting period. A month with no stored
// row is open.
type Period struct {
	types.Entity
	ID           id.PeriodID `json:"id"`
	Month        Month       `json:"month"`
	Status       Status      `json:"status"`
	ClosedAt     *time.Time  `json:"closed_at,omitempty"`
	ClosedBy     string      `json:"closed_by,omitempty"`
	Snapshot     *Snapshot   `json:"snapshot,omitempty"`
	SnapshotHash string      `json:"snapshot_hash,omitempty"`
}

// Closed reports whether the period is closed.
func (p *Period) Closed() bool { return p != nil && p.Status == StatusClosed }
