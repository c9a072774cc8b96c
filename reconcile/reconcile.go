// Package reconcile computes the cash/UPI tally of a business day and the
// trial balance of an accounting period. Everything here is pure.
package reconcile

import (
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Classification grades the absolute variance of a day's tally.
type Classification string

const (
	Perfect Classification = "perfect"
	Minor   Classification = "minor"
	Major   Classification = "major"
)

// Thresholds bound the variance classes in minor currency units.
type Thresholds struct {
	Perfect int64 `json:"perfect" mapstructure:"perfect" yaml:"perfect"`
	Minor   int64 `json:"minor"   mapstructure:"minor"   yaml:"minor"`
}

// DefaultThresholds returns the stock classification bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{Perfect: 10, Minor: 100}
}

// Classify maps a variance onto its class.
func (t Thresholds) Classify(variance int64) Classification {
	if variance < 0 {
		variance = -variance
	}
	switch {
	case variance <= t.Perfect:
		return Perfect
	case variance <= t.Minor:
		return Minor
	default:
		return Major
	}
}

// Input is everything the tally needs about one day.
type Input struct {
	Currency     string
	OpeningCash  types.Money
	OpeningUPI   types.Money
	PhysicalCash types.Money
	PhysicalUPI  types.Money
	Transactions []*transaction.Transaction
}

// Result is the outcome of a tally. A Mismatch is data to display, never an
// error.
type Result struct {
	CashIn       types.Money    `json:"cash_in"`
	CashOut      types.Money    `json:"cash_out"`
	UPIIn        types.Money    `json:"upi_in"`
	UPIOut       types.Money    `json:"upi_out"`
	ExpectedCash types.Money    `json:"expected_cash"`
	ExpectedUPI  types.Money    `json:"expected_upi"`
	PhysicalCash types.Money    `json:"physical_cash"`
	PhysicalUPI  types.Money    `json:"physical_upi"`
	CashVariance types.Money    `json:"cash_variance"`
	UPIVariance  types.Money    `json:"upi_variance"`
	Variance     types.Money    `json:"variance"`
	Class        Classification `json:"classification"`
	Mismatch     bool           `json:"mismatch"`
}

// Calculate runs the tally.
//
//	expected_cash = opening_cash + cash income - cash expense
//	expected_upi  = opening_upi + upi income - upi expense
//	variance      = (physical_cash + physical_upi) - (expected_cash + expected_upi)
func Calculate(in Input, th Thresholds) Result {
	cur := in.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	zero := types.Zero(cur)

	r := Result{
		CashIn:       zero,
		CashOut:      zero,
		UPIIn:        zero,
		UPIOut:       zero,
		PhysicalCash: orZero(in.PhysicalCash, cur),
		PhysicalUPI:  orZero(in.PhysicalUPI, cur),
	}

	for _, t := range in.Transactions {
		switch {
		case t.PaymentMode == transaction.ModeCash && t.Type == transaction.TypeIncome:
			r.CashIn = r.CashIn.Add(t.Amount)
		case t.PaymentMode == transaction.ModeCash && t.Type == transaction.TypeExpense:
			r.CashOut = r.CashOut.Add(t.Amount)
		case t.PaymentMode == transaction.ModeUPI && t.Type == transaction.TypeIncome:
			r.UPIIn = r.UPIIn.Add(t.Amount)
		case t.PaymentMode == transaction.ModeUPI && t.Type == transaction.TypeExpense:
			r.UPIOut = r.UPIOut.Add(t.Amount)
		}
	}

	r.ExpectedCash = orZero(in.OpeningCash, cur).Add(r.CashIn).Subtract(r.CashOut)
	r.ExpectedUPI = orZero(in.OpeningUPI, cur).Add(r.UPIIn).Subtract(r.UPIOut)
	r.CashVariance = r.PhysicalCash.Subtract(r.ExpectedCash)
	r.UPIVariance = r.PhysicalUPI.Subtract(r.ExpectedUPI)
	r.Variance = r.PhysicalCash.Add(r.PhysicalUPI).Subtract(r.ExpectedCash.Add(r.ExpectedUPI))
	r.Class = th.Classify(r.Variance.Amount)
	r.Mismatch = r.Class != Perfect

	return r
}

func orZero(m types.Money, currency string) types.Money {
	if m.Currency == "" {
		return types.Money{Amount: m.Amount, Currency: currency}
	}
	return m
}
