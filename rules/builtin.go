package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

var hundred = decimal.NewFromInt(100)

func txnAnomaly(t *transaction.Transaction, sev anomaly.Severity, title, desc string) *anomaly.Anomaly {
	return &anomaly.Anomaly{
		OutletID:       t.OutletID,
		Date:           types.DateOf(t.Date),
		Severity:       sev,
		Title:          title,
		Description:    desc,
		Bucket:         TxnBucket(t),
		TransactionIDs: idsOf([]*transaction.Transaction{t}),
	}
}

// cashSpike flags single cash sales above a ceiling.
type cashSpike struct{ ceiling int64 }

func (cashSpike) Type() anomaly.RuleType { return anomaly.RuleCashSpike }

func (r cashSpike) Evaluate(w Window) []*anomaly.Anomaly {
	var out []*anomaly.Anomaly
	for _, t := range w.Candidates {
		if !t.IsSale() || t.PaymentMode != transaction.ModeCash || t.Amount.Amount <= r.ceiling {
			continue
		}
		out = append(out, txnAnomaly(t, anomaly.SeverityCritical, "Cash sale spike",
			fmt.Sprintf("cash sale of %s exceeds %s", t.Amount, types.Money{Amount: r.ceiling, Currency: t.Amount.Currency})))
	}
	return out
}

// reversalLimit flags outlet-days with too many reversals.
type reversalLimit struct{ max int }

func (reversalLimit) Type() anomaly.RuleType { return anomaly.RuleReversalLimit }

func (r reversalLimit) Evaluate(w Window) []*anomaly.Anomaly {
	var reversals []*transaction.Transaction
	for _, t := range w.OnDate() {
		if t.IsReversal {
			reversals = append(reversals, t)
		}
	}
	if len(reversals) <= r.max {
		return nil
	}
	return []*anomaly.Anomaly{{
		Severity:       anomaly.SeverityWarning,
		Title:          "Daily reversal limit exceeded",
		Description:    fmt.Sprintf("%d reversals on %s, limit %d", len(reversals), types.FormatDate(w.Date), r.max),
		Bucket:         DayBucket(w.Date),
		TransactionIDs: idsOf(reversals),
	}}
}

// midnightWindow flags entries created in the small hours.
type midnightWindow struct {
	cal        clock.Calendar
	start, end int
	warnAt     int64
}

func (midnightWindow) Type() anomaly.RuleType { return anomaly.RuleMidnightWindow }

func (r midnightWindow) Evaluate(w Window) []*anomaly.Anomaly {
	var out []*anomaly.Anomaly
	for _, t := range w.Candidates {
		m := r.cal.ClockOf(t.CreatedAt)
		if m < r.start || m > r.end {
			continue
		}
		sev := anomaly.SeverityInfo
		if t.Amount.Amount >= r.warnAt {
			sev = anomaly.SeverityWarning
		}
		out = append(out, txnAnomaly(t, sev, "Entry in midnight window",
			fmt.Sprintf("%s entry created at %s local time", t.Amount, r.cal.Local(t.CreatedAt).Format("15:04"))))
	}
	return out
}

// refundRatio flags look-back windows where reversals outweigh sales.
type refundRatio struct {
	days     int
	percent  decimal.Decimal
	minSales int64
}

func (refundRatio) Type() anomaly.RuleType { return anomaly.RuleRefundRatio }

func (r refundRatio) Evaluate(w Window) []*anomaly.Anomaly {
	var sales, refunds int64
	var refundTxns []*transaction.Transaction
	for _, t := range w.Transactions {
		switch {
		case t.IsReversal:
			refunds += t.Amount.Amount
			refundTxns = append(refundTxns, t)
		case t.IsSale():
			sales += t.Amount.Amount
		}
	}
	if sales == 0 || sales < r.minSales {
		return nil
	}
	ratio := decimal.NewFromInt(refunds).Div(decimal.NewFromInt(sales)).Mul(hundred)
	if !ratio.GreaterThan(r.percent) {
		return nil
	}

	days := r.days
	if days < 1 {
		days = 1
	}
	to := types.DateOf(w.Date)
	from := types.AddDays(to, -(days - 1))
	desc := fmt.Sprintf("refunds are %s%% of sales over %s..%s, limit %s%%",
		ratio.StringFixed(1), types.FormatDate(from), types.FormatDate(to), r.percent.String())
	return []*anomaly.Anomaly{{
		Severity:       anomaly.SeverityWarning,
		Title:          "High refund to sale ratio",
		Description:    desc,
		Bucket:         WindowBucket(from, to),
		TransactionIDs: idsOf(refundTxns),
	}}
}

// manualJournal flags every manual entry for review.
type manualJournal struct{}

func (manualJournal) Type() anomaly.RuleType { return anomaly.RuleManualJournal }

func (manualJournal) Evaluate(w Window) []*anomaly.Anomaly {
	var out []*anomaly.Anomaly
	for _, t := range w.Candidates {
		if !t.IsManual {
			continue
		}
		a := txnAnomaly(t, anomaly.SeverityWarning, "Manual journal entry",
			fmt.Sprintf("manual %s of %s by %s", t.Type, t.Amount, t.CreatedBy))
		a.RequiresReview = true
		out = append(out, a)
	}
	return out
}

// bigTransaction flags any entry above a ceiling regardless of mode.
type bigTransaction struct{ ceiling int64 }

func (bigTransaction) Type() anomaly.RuleType { return anomaly.RuleBigTransaction }

func (r bigTransaction) Evaluate(w Window) []*anomaly.Anomaly {
	var out []*anomaly.Anomaly
	for _, t := range w.Candidates {
		if t.Amount.Amount <= r.ceiling {
			continue
		}
		out = append(out, txnAnomaly(t, anomaly.SeverityWarning, "Big transaction",
			fmt.Sprintf("%s %s of %s", t.PaymentMode, t.Type, t.Amount)))
	}
	return out
}

// postLockPosting flags entries stamped after their day was locked.
type postLockPosting struct{ grace time.Duration }

func (postLockPosting) Type() anomaly.RuleType { return anomaly.RulePostLockPosting }

func (r postLockPosting) Evaluate(w Window) []*anomaly.Anomaly {
	if w.Day == nil || w.Day.LockedAt == nil {
		return nil
	}
	limit := w.Day.LockedAt.Add(r.grace)
	var out []*anomaly.Anomaly
	for _, t := range w.Candidates {
		if !t.CreatedAt.After(limit) {
			continue
		}
		out = append(out, txnAnomaly(t, anomaly.SeverityCritical, "Posting after day lock",
			fmt.Sprintf("entry created %s after the day was locked", t.CreatedAt.Sub(*w.Day.LockedAt).Round(time.Second))))
	}
	return out
}

// closedOut reports whether day-level totals are final enough to judge.
func closedOut(d *day.Record) bool {
	return d != nil && d.Status != day.StatusOpen
}

// zeroCashDay flags a closed-out day with sales but no cash sales.
type zeroCashDay struct{}

func (zeroCashDay) Type() anomaly.RuleType { return anomaly.RuleZeroCashDay }

func (zeroCashDay) Evaluate(w Window) []*anomaly.Anomaly {
	if !closedOut(w.Day) {
		return nil
	}
	var income, cash int64
	for _, t := range w.OnDate() {
		if !t.IsSale() {
			continue
		}
		income += t.Amount.Amount
		if t.PaymentMode == transaction.ModeCash {
			cash += t.Amount.Amount
		}
	}
	if income == 0 || cash > 0 {
		return nil
	}
	return []*anomaly.Anomaly{{
		Severity:    anomaly.SeverityInfo,
		Title:       "No cash sales",
		Description: fmt.Sprintf("%s had sales but no cash sales", types.FormatDate(w.Date)),
		Bucket:      DayBucket(w.Date),
	}}
}

// highCreditDay flags a closed-out day dominated by credit sales.
type highCreditDay struct {
	percent  decimal.Decimal
	minSales int64
}

func (highCreditDay) Type() anomaly.RuleType { return anomaly.RuleHighCreditDay }

func (r highCreditDay) Evaluate(w Window) []*anomaly.Anomaly {
	if !closedOut(w.Day) {
		return nil
	}
	var sales, credit int64
	var creditTxns []*transaction.Transaction
	for _, t := range w.OnDate() {
		if !t.IsSale() {
			continue
		}
		sales += t.Amount.Amount
		if t.PaymentMode == transaction.ModeCredit {
			credit += t.Amount.Amount
			creditTxns = append(creditTxns, t)
		}
	}
	if sales <= r.minSales {
		return nil
	}
	share := decimal.NewFromInt(credit).Div(decimal.NewFromInt(sales)).Mul(hundred)
	if !share.GreaterThan(r.percent) {
		return nil
	}
	return []*anomaly.Anomaly{{
		Severity:       anomaly.SeverityWarning,
		Title:          "High credit sales",
		Description:    fmt.Sprintf("credit is %s%% of sales on %s", share.StringFixed(1), types.FormatDate(w.Date)),
		Bucket:         DayBucket(w.Date),
		TransactionIDs: idsOf(creditTxns),
	}}
}
