package daybook

import (
	"context"
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
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// ──────────────────────────────────────────────────
// Read queries
// ──────────────────────────────────────────────────

// DayState returns the status of an outlet-day. A day with no record is
// open.
func (e *Engine) DayState(ctx context.Context, outletID string, date time.Time) (day.Status, error) {
	rec, err := e.findDay(ctx, outletID, types.DateOf(date))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return day.StatusOpen, nil
	}
	return rec.Status, nil
}

// Day returns a day record by ID.
func (e *Engine) Day(ctx context.Context, dayID id.DayID) (*day.Record, error) {
	return e.store.GetDay(ctx, dayID)
}

// Reconciliation recomputes the tally of an outlet-day from its
// transactions.
func (e *Engine) Reconciliation(ctx context.Context, outletID string, date time.Time) (reconcile.Result, error) {
	rec, err := e.store.GetDayByDate(ctx, outletID, types.DateOf(date))
	if err != nil {
		return reconcile.Result{}, err
	}
	txns, err := e.store.ListTransactions(ctx, transaction.ListOpts{DayID: rec.ID})
	if err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Calculate(reconInput(rec, txns), e.config.Thresholds), nil
}

// DayDetailInput requests the full view of one outlet-day.
type DayDetailInput struct {
	OutletID string       `json:"outlet_id"     validate:"required"`
	Date     time.Time    `json:"business_date"`
	Actor    access.Actor `json:"actor"`

	// HasReadGrant reports an active time-bound read exception for Actor.
	HasReadGrant bool `json:"has_read_grant"`
}

// DayDetail is a day record with its transactions and tally.
type DayDetail struct {
	Record         *day.Record                `json:"record"`
	Transactions   []*transaction.Transaction `json:"transactions"`
	Reconciliation reconcile.Result           `json:"reconciliation"`
}

// DayDetail returns the day record, its transactions and its tally, after
// the read gate has admitted the actor.
func (e *Engine) DayDetail(ctx context.Context, in DayDetailInput) (detail *DayDetail, err error) {
	ctx, span := e.startSpan(ctx, "DayDetail", attribute.String("outlet_id", in.OutletID))
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}
	date := types.DateOf(in.Date)

	rec, err := e.store.GetDayByDate(ctx, in.OutletID, date)
	if err != nil {
		return nil, err
	}
	if err := denied(gate.Authorize(gate.Request{
		Access:       gate.Read,
		Date:         date,
		Today:        e.Today(),
		Role:         in.Actor.Role,
		DayStatus:    rec.Status,
		HasReadGrant: in.HasReadGrant,
	})); err != nil {
		return nil, err
	}

	txns, err := e.store.ListTransactions(ctx, transaction.ListOpts{DayID: rec.ID})
	if err != nil {
		return nil, err
	}
	return &DayDetail{
		Record:         rec,
		Transactions:   txns,
		Reconciliation: reconcile.Calculate(reconInput(rec, txns), e.config.Thresholds),
	}, nil
}

// Transactions lists transactions.
func (e *Engine) Transactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	return e.store.ListTransactions(ctx, opts)
}

// ListAudit lists audit entries.
func (e *Engine) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	return e.store.ListAudit(ctx, opts)
}

// ──────────────────────────────────────────────────
// Day setup
// ──────────────────────────────────────────────────

// OpenDay creates the outlet-day ahead of its first posting. An existing
// day is returned unchanged.
func (e *Engine) OpenDay(ctx context.Context, outletID string, date time.Time, actor access.Actor) (rec *day.Record, err error) {
	ctx, span := e.startSpan(ctx, "OpenDay", attribute.String("outlet_id", outletID))
	defer func() { endSpan(span, err) }()

	if outletID == "" {
		return nil, &ValidationError{Field: "outlet_id", Message: "is required"}
	}
	if err := e.check(actor); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	date = types.DateOf(date)

	err = e.locker.WithLock(ctx, lock.DayKey(outletID, date), func(ctx context.Context) error {
		existing, err := e.findDay(ctx, outletID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			rec = existing
			return nil
		}
		if err := e.authorizeWrite(ctx, outletID, date, actor, day.StatusOpen); err != nil {
			return err
		}
		rec, err = e.ensureDay(ctx, outletID, date, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetOpeningBalance sets the opening balances of a day that did not inherit
// them. Balances are set at most once and only before the day's first
// transaction, which otherwise fixes them at zero.
func (e *Engine) SetOpeningBalance(ctx context.Context, dayID id.DayID, cash, upi int64, actor access.Actor) (*day.Record, error) {
	if cash < 0 || upi < 0 {
		return nil, &ValidationError{Field: "opening_balance", Message: "must not be negative"}
	}
	return e.updateDay(ctx, "SetOpeningBalance", dayID, actor, func(rec *day.Record) error {
		if rec.Totals.Count > 0 {
			return &ValidationError{Field: "opening_balance", Message: "cannot change after the first transaction"}
		}
		if rec.OpeningSet {
			return &ValidationError{Field: "opening_balance", Message: "opening balances already set"}
		}
		rec.OpeningCash = types.Money{Amount: cash, Currency: rec.Currency}
		rec.OpeningUPI = types.Money{Amount: upi, Currency: rec.Currency}
		rec.OpeningSet = true
		return nil
	})
}

// SetPhysicalTally records the counted cash and UPI balances of a day.
// The tally may be corrected until the day is locked.
func (e *Engine) SetPhysicalTally(
	ctx context.Context,
	dayID id.DayID,
	physicalCash, physicalUPI int64,
	comment string,
	actor access.Actor,
) (*day.Record, error) {
	if physicalCash < 0 || physicalUPI < 0 {
		return nil, &ValidationError{Field: "physical_tally", Message: "must not be negative"}
	}
	return e.updateDay(ctx, "SetPhysicalTally", dayID, actor, func(rec *day.Record) error {
		rec.PhysicalCash = types.Money{Amount: physicalCash, Currency: rec.Currency}
		rec.PhysicalUPI = types.Money{Amount: physicalUPI, Currency: rec.Currency}
		rec.TallySet = true
		rec.TallyComment = strings.TrimSpace(comment)
		return nil
	})
}

// updateDay applies mutate to a day under its lock, after the write gate.
func (e *Engine) updateDay(
	ctx context.Context,
	op string,
	dayID id.DayID,
	actor access.Actor,
	mutate func(*day.Record) error,
) (rec *day.Record, err error) {
	ctx, span := e.startSpan(ctx, op, attribute.String("day_id", dayID.String()))
	defer func() { endSpan(span, err) }()

	if err := e.check(actor); err != nil {
		return nil, err
	}
	current, err := e.store.GetDay(ctx, dayID)
	if err != nil {
		return nil, err
	}

	err = e.locker.WithLock(ctx, lock.DayKey(current.OutletID, current.Date), func(ctx context.Context) error {
		stored, err := e.store.GetDay(ctx, dayID)
		if err != nil {
			return err
		}
		if err := e.authorizeWrite(ctx, stored.OutletID, stored.Date, actor, stored.Status); err != nil {
			return err
		}

		next := stored.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.Version++
		next.Touch(e.clock.Now())

		err = atomicallyErr(ctx, e.config.AuditRetry, func() error {
			return e.store.UpdateDay(ctx, next)
		})
		if err != nil {
			return gateError(err)
		}
		rec = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// authorizeWrite asks the gate whether actor may write to the outlet-day.
func (e *Engine) authorizeWrite(ctx context.Context, outletID string, date time.Time, actor access.Actor, status day.Status) error {
	ps, err := e.periodStatus(ctx, period.MonthOf(date))
	if err != nil {
		return err
	}
	d := gate.Authorize(gate.Request{
		Access:       gate.Write,
		Date:         date,
		Today:        e.Today(),
		Role:         actor.Role,
		DayStatus:    status,
		PeriodStatus: ps,
		Windows:      e.config.BackdateWindows,
	})
	if !d.Allowed {
		e.logger.Warn("day write denied",
			"outlet_id", outletID,
			"date", types.FormatDate(date),
			"actor", actor.String(),
			"reason", d.Reason,
		)
	}
	return denied(d)
}

// ──────────────────────────────────────────────────
// Spreadsheet sync
// ──────────────────────────────────────────────────

// ListUnsyncedLocked lists locked days the spreadsheet export has not
// copied yet, oldest first. An empty outletID lists every outlet.
func (e *Engine) ListUnsyncedLocked(ctx context.Context, outletID string, limit int) ([]*day.Record, error) {
	return e.store.ListDays(ctx, day.ListOpts{OutletID: outletID, Unsynced: true, Limit: limit})
}

// MarkSynced records that the export copied a locked day. Marking twice is
// harmless; a day that is not locked is refused.
func (e *Engine) MarkSynced(ctx context.Context, dayID id.DayID) error {
	return e.store.MarkSynced(ctx, dayID, e.clock.Now().UTC())
}
