package daybook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/gate"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/lock"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/plugin"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// PostTransactionInput is one proposed ledger posting. Amount is in minor
// units of the ledger currency. A zero Date posts to the current business
// date.
type PostTransactionInput struct {
	OutletID       string                  `json:"outlet_id"         validate:"required,max=64"`
	Date           time.Time               `json:"business_date"`
	Type           transaction.Type        `json:"type"              validate:"required,txn_type"`
	Category       string                  `json:"category"          validate:"required,max=64"`
	PaymentMode    transaction.PaymentMode `json:"payment_mode"      validate:"required,payment_mode"`
	Amount         int64                   `json:"amount"            validate:"gt=0"`
	Account        *transaction.Account    `json:"account,omitempty"`
	Note           string                  `json:"note,omitempty"    validate:"max=500"`
	Actor          access.Actor            `json:"actor"`
	IdempotencyKey string                  `json:"idempotency_key"   validate:"required,max=128"`
	IsManual       bool                    `json:"is_manual"`
	IsReversal     bool                    `json:"is_reversal"`
}

// posted is the result of one posting unit.
type posted struct {
	txn     *transaction.Transaction
	created bool
}

// PostTransaction admits one transaction through the gate, folds it into
// the day totals and runs the anomaly rules on it.
//
// Posting is idempotent on (outlet, idempotency key): a repeated key
// returns the stored original and changes nothing. Rule failures after the
// commit are logged, never returned.
func (e *Engine) PostTransaction(ctx context.Context, in PostTransactionInput) (txn *transaction.Transaction, err error) {
	ctx, span := e.startSpan(ctx, "PostTransaction",
		attribute.String("outlet_id", in.OutletID),
		attribute.String("idempotency_key", in.IdempotencyKey),
	)
	defer func() { endSpan(span, err) }()

	if err := e.checkPosting(in); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	today := e.calendar.BusinessDate(now)
	date := today
	if !in.Date.IsZero() {
		date = types.DateOf(in.Date)
	}

	// Fast path for retries.
	if existing, err := e.replay(ctx, in.OutletID, in.IdempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	var res posted
	err = e.locker.WithLock(ctx, lock.DayKey(in.OutletID, date), func(ctx context.Context) error {
		existing, err := e.replay(ctx, in.OutletID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			res = posted{txn: existing}
			return nil
		}

		rec, err := e.findDay(ctx, in.OutletID, date)
		if err != nil {
			return err
		}
		ps, err := e.periodStatus(ctx, period.MonthOf(date))
		if err != nil {
			return err
		}

		req := gate.Request{
			Access:       gate.Write,
			Date:         date,
			Today:        today,
			Role:         in.Actor.Role,
			DayStatus:    day.StatusOpen,
			PeriodStatus: ps,
			Windows:      e.config.BackdateWindows,
		}
		if rec != nil {
			req.DayStatus = rec.Status
		}
		if err := denied(gate.Authorize(req)); err != nil {
			return err
		}

		if rec == nil {
			if rec, err = e.ensureDay(ctx, in.OutletID, date, now); err != nil {
				return err
			}
		}
		if !rec.OpeningSet {
			if rec, err = e.freezeOpening(ctx, rec, now); err != nil {
				return err
			}
		}

		t := e.newTransaction(in, rec, now)
		var entry *audit.Entry
		if t.IsManual {
			entry, err = e.auditEntry(ctx, in.Actor, audit.ActionManualJournal,
				audit.EntityTransaction, t.ID.String(), nil, t, t.Note, audit.SeverityWarning)
			if err != nil {
				return err
			}
		}

		res, err = atomically(ctx, e.config.AuditRetry, func() (posted, error) {
			stored, created, err := e.store.PostTransaction(ctx, t, entry)
			return posted{txn: stored, created: created}, err
		})
		return gateError(err)
	})
	if err != nil {
		var gd *GateDenied
		if errors.As(err, &gd) {
			e.logger.Warn("posting denied",
				"outlet_id", in.OutletID,
				"date", types.FormatDate(date),
				"actor", in.Actor.String(),
				"reason", gd.Reason,
			)
			e.plugins.EmitTransactionDenied(ctx, plugin.Denial{
				OutletID: in.OutletID,
				Date:     date,
				Actor:    in.Actor,
				Rule:     string(gd.Rule),
				Reason:   gd.Reason,
			})
		}
		return nil, err
	}

	if res.created {
		e.logger.Debug("transaction posted",
			"outlet_id", res.txn.OutletID,
			"date", types.FormatDate(res.txn.Date),
			"transaction_id", res.txn.ID.String(),
			"amount", res.txn.Amount.String(),
		)
		e.afterPost(ctx, res.txn)
	}
	return res.txn, nil
}

// checkPosting validates the input shape. Gate rules are checked later,
// under the day lock.
func (e *Engine) checkPosting(in PostTransactionInput) error {
	if err := e.check(in); err != nil {
		return err
	}
	if in.Amount > e.config.MaxAmount {
		limit := types.Money{Amount: e.config.MaxAmount, Currency: e.config.Currency}
		return &ValidationError{Field: "amount", Message: "must not exceed " + limit.String()}
	}
	if a := in.Account; a != nil {
		if strings.TrimSpace(a.Code) == "" {
			return &ValidationError{Field: "account.code", Message: "is required"}
		}
		if !a.Type.IsValid() {
			return &ValidationError{Field: "account.type", Message: fmt.Sprintf("unknown value %q", a.Type)}
		}
	}
	return nil
}

// replay returns the transaction already stored under key, or nil.
func (e *Engine) replay(ctx context.Context, outletID, key string) (*transaction.Transaction, error) {
	t, err := e.store.GetTransactionByKey(ctx, outletID, key)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (e *Engine) newTransaction(in PostTransactionInput, rec *day.Record, now time.Time) *transaction.Transaction {
	t := &transaction.Transaction{
		ID:             id.NewTransactionID(),
		OutletID:       rec.OutletID,
		Date:           rec.Date,
		DayID:          rec.ID,
		Type:           in.Type,
		Category:       strings.TrimSpace(in.Category),
		PaymentMode:    in.PaymentMode,
		Amount:         types.Money{Amount: in.Amount, Currency: rec.Currency},
		Note:           strings.TrimSpace(in.Note),
		CreatedBy:      in.Actor.ID,
		CreatedAt:      now.UTC(),
		IsManual:       in.IsManual,
		IsReversal:     in.IsReversal,
		IdempotencyKey: in.IdempotencyKey,
	}
	if in.Account != nil {
		acct := *in.Account
		t.Account = &acct
	}
	return t
}

// afterPost runs the post-commit steps of a new posting.
func (e *Engine) afterPost(ctx context.Context, t *transaction.Transaction) {
	w, err := e.window(ctx, t.OutletID, t.Date)
	if err != nil {
		e.logger.Error("anomaly evaluation skipped",
			"outlet_id", t.OutletID,
			"transaction_id", t.ID.String(),
			"error", err,
		)
	} else {
		w.Candidates = []*transaction.Transaction{t}
		e.detect(ctx, w)
	}

	e.plugins.EmitTransactionPosted(ctx, t)
}

// freezeOpening fixes unset opening balances at zero ahead of a day's
// first transaction. The caller holds the day lock.
func (e *Engine) freezeOpening(ctx context.Context, rec *day.Record, now time.Time) (*day.Record, error) {
	next := rec.Clone()
	next.OpeningCash = types.Money{Amount: 0, Currency: rec.Currency}
	next.OpeningUPI = types.Money{Amount: 0, Currency: rec.Currency}
	next.OpeningSet = true
	next.Version++
	next.Touch(now)
	if err := e.store.UpdateDay(ctx, next); err != nil {
		return nil, err
	}
	e.logger.Info("opening balances defaulted",
		"outlet_id", rec.OutletID,
		"date", types.FormatDate(rec.Date),
	)
	return next, nil
}

// ──────────────────────────────────────────────────
// Day lookup helpers
// ──────────────────────────────────────────────────

// findDay returns the outlet-day, or nil when none exists yet.
func (e *Engine) findDay(ctx context.Context, outletID string, date time.Time) (*day.Record, error) {
	rec, err := e.store.GetDayByDate(ctx, outletID, date)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// periodStatus returns the status of month. A missing period is open.
func (e *Engine) periodStatus(ctx context.Context, month period.Month) (period.Status, error) {
	p, err := e.store.GetPeriod(ctx, month)
	if err != nil {
		if IsNotFound(err) {
			return period.StatusOpen, nil
		}
		return "", err
	}
	return p.Status, nil
}

// ensureDay creates the outlet-day, carrying opening balances over from
// the outlet's most recent locked day. The caller holds the day lock.
func (e *Engine) ensureDay(ctx context.Context, outletID string, date, now time.Time) (*day.Record, error) {
	rec := day.NewRecord(outletID, date, e.config.Currency, now)

	prev, err := e.store.LastLockedDay(ctx, outletID, date)
	switch {
	case err == nil:
		rec.OpeningCash = prev.PhysicalCash
		rec.OpeningUPI = prev.PhysicalUPI
		rec.OpeningSet = true
	case !IsNotFound(err):
		return nil, err
	}

	if err := e.store.CreateDay(ctx, rec); err != nil {
		// Another instance without a shared locker got there first.
		if errors.Is(err, ErrAlreadyExists) {
			return e.store.GetDayByDate(ctx, outletID, date)
		}
		return nil, err
	}

	e.logger.Info("day opened",
		"outlet_id", outletID,
		"date", types.FormatDate(date),
		"opening_carried", rec.OpeningSet,
	)
	return rec, nil
}
