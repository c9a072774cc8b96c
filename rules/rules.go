// Package rules is the anomaly rule engine. Rules are stateless evaluators
// over a window of an outlet's transactions; persistence and dedupe by key
// are the caller's concern.
package rules

import (
	"time"

	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Window is the input to one evaluation pass for an outlet-date.
type Window struct {
	OutletID string
	Date     time.Time

	// Transactions covers the look-back range ending at Date, as reported
	// by Engine.Lookback.
	Transactions []*transaction.Transaction

	// Candidates are the transactions per-transaction rules inspect: the
	// newly admitted one, or every transaction of Date in batch mode.
	Candidates []*transaction.Transaction

	// Day is the outlet-day record, nil when none exists yet.
	Day *day.Record
}

// OnDate returns the window's transactions booked on its own date.
func (w Window) OnDate() []*transaction.Transaction {
	var out []*transaction.Transaction
	for _, t := range w.Transactions {
		if types.SameDate(t.Date, w.Date) {
			out = append(out, t)
		}
	}
	return out
}

// Rule inspects a window and reports anomalies. Implementations fill in
// OutletID, Date, RuleType, Severity, Title, Description, Bucket and
// TransactionIDs; the engine stamps the rest.
type Rule interface {
	Type() anomaly.RuleType
	Evaluate(w Window) []*anomaly.Anomaly
}

// Option configures an Engine.
type Option func(*Engine)

// WithRule adds a custom rule after the built-in ones.
func WithRule(r Rule) Option {
	return func(e *Engine) { e.rules = append(e.rules, r) }
}

// WithCalendar sets the calendar used for local wall-clock checks.
func WithCalendar(cal clock.Calendar) Option {
	return func(e *Engine) { e.cal = cal }
}

// Engine runs the configured rules.
type Engine struct {
	cfg   Config
	cal   clock.Calendar
	rules []Rule
}

// New builds an engine with the built-in rules for cfg.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg}
	if cal, err := clock.NewCalendar(clock.DefaultTimezone, 7); err == nil {
		e.cal = cal
	}
	for _, opt := range opts {
		opt(e)
	}
	builtin := []Rule{
		cashSpike{ceiling: cfg.CashSpikeCeiling},
		reversalLimit{max: cfg.MaxReversalsPerDay},
		midnightWindow{cal: e.cal, start: cfg.MidnightStart, end: cfg.MidnightEnd, warnAt: cfg.MidnightWarnAmount},
		refundRatio{days: cfg.RefundWindowDays, percent: cfg.RefundRatioPercent, minSales: cfg.RefundMinSales},
		manualJournal{},
		bigTransaction{ceiling: cfg.BigTransactionCeiling},
		postLockPosting{grace: cfg.PostLockGrace},
		zeroCashDay{},
		highCreditDay{percent: cfg.HighCreditPercent, minSales: cfg.HighCreditMinSales},
	}
	e.rules = append(builtin, e.rules...)
	return e
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config { return e.cfg }

// Rules returns the enabled rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if !e.cfg.disabled(r.Type()) {
			out = append(out, r)
		}
	}
	return out
}

// Lookback returns the inclusive date range a window for date must cover.
func (e *Engine) Lookback(date time.Time) (from, to time.Time) {
	days := e.cfg.RefundWindowDays
	if days < 1 {
		days = 1
	}
	to = types.DateOf(date)
	return types.AddDays(to, -(days - 1)), to
}

// Evaluate runs every enabled rule over w. The result holds at most one
// anomaly per dedupe key, each stamped with a fresh ID, detection time
// and open status.
func (e *Engine) Evaluate(w Window, now time.Time) []*anomaly.Anomaly {
	seen := make(map[string]bool)
	var out []*anomaly.Anomaly
	for _, r := range e.Rules() {
		for _, a := range r.Evaluate(w) {
			if a.RuleType == "" {
				a.RuleType = r.Type()
			}
			if a.OutletID == "" {
				a.OutletID = w.OutletID
			}
			if a.Date.IsZero() {
				a.Date = types.DateOf(w.Date)
			}
			a.DedupeKey = anomaly.DedupeKey(a.RuleType, a.OutletID, a.Bucket)
			if seen[a.DedupeKey] {
				continue
			}
			seen[a.DedupeKey] = true

			a.ID = id.NewAnomalyID()
			a.DetectedAt = now.UTC()
			a.Status = anomaly.StatusOpen
			out = append(out, a)
		}
	}
	return out
}

// Bucket helpers shared by the built-in rules.

// TxnBucket scopes an anomaly to one transaction.
func TxnBucket(t *transaction.Transaction) string { return "txn:" + t.ID.String() }

// DayBucket scopes an anomaly to one business date.
func DayBucket(d time.Time) string { return "day:" + types.FormatDate(d) }

// WindowBucket scopes an anomaly to an inclusive date range.
func WindowBucket(from, to time.Time) string {
	return "window:" + types.FormatDate(from) + ".." + types.FormatDate(to)
}

func idsOf(txns []*transaction.Transaction) []id.TransactionID {
	out := make([]id.TransactionID, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}
