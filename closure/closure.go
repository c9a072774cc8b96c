// Package closure decides whether an accounting period may be closed and
// builds the snapshot a closed period is frozen on.
package closure

import (
	"fmt"
	"sort"

	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Check names.
const (
	CheckDaysLocked     = "days_locked"
	CheckTrialBalance   = "trial_balance"
	CheckCashReconciled = "cash_reconciled"
)

// Config tunes the checklist.
type Config struct {
	// TrialBalanceEpsilon is the exclusive bound on the debit/credit
	// imbalance, in minor units.
	TrialBalanceEpsilon int64 `json:"trial_balance_epsilon" mapstructure:"trial_balance_epsilon" yaml:"trial_balance_epsilon"`
	// BlockOnMajorVariance turns major-variance days from a warning into
	// a failure.
	BlockOnMajorVariance bool `json:"block_on_major_variance" mapstructure:"block_on_major_variance" yaml:"block_on_major_variance"`
}

// DefaultConfig returns the stock checklist settings.
func DefaultConfig() Config {
	return Config{TrialBalanceEpsilon: 1}
}

// DayFacts is one outlet-day as the checklist sees it.
type DayFacts struct {
	Record         *day.Record
	Reconciliation reconcile.Result
}

// Facts is everything known about a month at validation time.
type Facts struct {
	Month        period.Month
	Currency     string
	Days         []DayFacts
	Transactions []*transaction.Transaction
	TrialBalance reconcile.TrialBalance
}

// Check is one checklist line.
type Check struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Result is the checklist outcome. Every failing check is listed.
type Result struct {
	OK       bool    `json:"ok"`
	Failed   []Check `json:"failed,omitempty"`
	Warnings []Check `json:"warnings,omitempty"`
}

// Validate runs the checklist over f.
func Validate(f Facts, cfg Config) Result {
	var res Result

	var open []string
	for _, d := range sortedDays(f.Days) {
		if !d.Record.Locked() {
			open = append(open, fmt.Sprintf("%s %s (%s)", d.Record.OutletID, types.FormatDate(d.Record.Date), d.Record.Status))
		}
	}
	if len(open) > 0 {
		res.Failed = append(res.Failed, Check{
			Name:    CheckDaysLocked,
			Message: fmt.Sprintf("%d day(s) not locked", len(open)),
			Details: open,
		})
	}

	tb := f.TrialBalance
	switch {
	case tb.Contributing == 0:
		res.Failed = append(res.Failed, Check{
			Name:    CheckTrialBalance,
			Message: "no transactions with a mapped account",
		})
	case !tb.Balanced(cfg.TrialBalanceEpsilon):
		res.Failed = append(res.Failed, Check{
			Name:    CheckTrialBalance,
			Message: fmt.Sprintf("debits %s and credits %s differ by %s", tb.Debit, tb.Credit, tb.Imbalance),
		})
	}

	var major []string
	for _, d := range sortedDays(f.Days) {
		if d.Reconciliation.Class == reconcile.Major {
			major = append(major, fmt.Sprintf("%s %s variance %s", d.Record.OutletID, types.FormatDate(d.Record.Date), d.Reconciliation.Variance))
		}
	}
	if len(major) > 0 {
		c := Check{
			Name:    CheckCashReconciled,
			Message: fmt.Sprintf("%d day(s) with major variance", len(major)),
			Details: major,
		}
		if cfg.BlockOnMajorVariance {
			res.Failed = append(res.Failed, c)
		} else {
			res.Warnings = append(res.Warnings, c)
		}
	}

	res.OK = len(res.Failed) == 0
	return res
}

func sortedDays(days []DayFacts) []DayFacts {
	out := append([]DayFacts(nil), days...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.OutletID < b.OutletID
	})
	return out
}

// BuildSnapshot freezes the month's figures. Opening balances are summed
// over each outlet's first day and closing balances over each outlet's
// last day's physical counts.
func BuildSnapshot(f Facts) period.Snapshot {
	s := period.Snapshot{
		Month:        f.Month,
		Currency:     f.Currency,
		Days:         len(f.Days),
		Transactions: len(f.Transactions),
		TrialBalance: f.TrialBalance,
	}
	for _, t := range f.Transactions {
		switch t.Type {
		case transaction.TypeIncome:
			s.TotalIncome += t.Amount.Amount
		case transaction.TypeExpense:
			s.TotalExpense += t.Amount.Amount
		}
	}

	first := make(map[string]*day.Record)
	last := make(map[string]*day.Record)
	for _, d := range sortedDays(f.Days) {
		r := d.Record
		if _, ok := first[r.OutletID]; !ok {
			first[r.OutletID] = r
		}
		last[r.OutletID] = r
		if d.Reconciliation.Class == reconcile.Major {
			s.MajorVarianceDays++
		}
	}
	for _, r := range first {
		s.OpeningCash += r.OpeningCash.Amount
		s.OpeningUPI += r.OpeningUPI.Amount
	}
	for _, r := range last {
		s.ClosingCash += r.PhysicalCash.Amount
		s.ClosingUPI += r.PhysicalUPI.Amount
	}
	return s
}
