package daybook

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/lock"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// TransitionInput requests a day status change. The day is named either by
// DayID or by OutletID and Date. Reason is required for an unlock.
type TransitionInput struct {
	DayID    id.DayID     `json:"day_id"`
	OutletID string       `json:"outlet_id"`
	Date     time.Time    `json:"business_date"`
	Target   day.Status   `json:"target"           validate:"required"`
	Actor    access.Actor `json:"actor"`
	Reason   string       `json:"reason,omitempty" validate:"max=1000"`
}

// TransitionDay submits, locks or unlocks a day through the state machine.
// The change and its audit entry commit together.
func (e *Engine) TransitionDay(ctx context.Context, in TransitionInput) (rec *day.Record, err error) {
	ctx, span := e.startSpan(ctx, "TransitionDay",
		attribute.String("outlet_id", in.OutletID),
		attribute.String("target", string(in.Target)),
	)
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}
	outletID, date, err := e.locate(ctx, in.DayID, in.OutletID, in.Date)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, outletID, date, in.Target, in.Actor, in.Reason, "")
}

// locate resolves a day reference to its lock key parts.
func (e *Engine) locate(ctx context.Context, dayID id.DayID, outletID string, date time.Time) (string, time.Time, error) {
	if !dayID.IsNil() {
		rec, err := e.store.GetDay(ctx, dayID)
		if err != nil {
			return "", time.Time{}, err
		}
		return rec.OutletID, rec.Date, nil
	}
	if outletID == "" || date.IsZero() {
		return "", time.Time{}, &ValidationError{Field: "day_id", Message: "day_id or outlet_id and business_date are required"}
	}
	return outletID, types.DateOf(date), nil
}

// transition runs one state change under the day lock. An escalation lock
// creates the day when none exists yet.
func (e *Engine) transition(
	ctx context.Context,
	outletID string, date time.Time,
	target day.Status,
	actor access.Actor,
	reason, cause string,
) (*day.Record, error) {
	var before, after *day.Record

	err := e.locker.WithLock(ctx, lock.DayKey(outletID, date), func(ctx context.Context) error {
		rec, err := e.store.GetDayByDate(ctx, outletID, date)
		if err != nil {
			if !IsNotFound(err) || cause != day.CauseAutoEscalation {
				return err
			}
			if rec, err = e.ensureDay(ctx, outletID, date, e.clock.Now()); err != nil {
				return err
			}
		}
		ps, err := e.periodStatus(ctx, period.MonthOf(date))
		if err != nil {
			return err
		}

		// Rules judge the authoritative transaction set, never the cache.
		txns, err := e.store.ListTransactions(ctx, transaction.ListOpts{DayID: rec.ID})
		if err != nil {
			return err
		}
		totals := day.Compute(rec.Currency, txns)
		fresh := rec.Clone()
		fresh.Totals = totals
		recon := reconcile.Calculate(reconInput(fresh, txns), e.config.Thresholds)

		req := day.Request{
			Record:         fresh,
			Target:         target,
			Actor:          actor,
			Reason:         reason,
			Cause:          cause,
			PeriodClosed:   ps == period.StatusClosed,
			Reconciliation: &recon,
		}
		if err := e.machine.Check(req); err != nil {
			return violationError(err)
		}
		next := e.machine.Apply(req, &totals, e.clock.Now())

		action, severity, note := transitionAudit(next, recon)
		entry, err := e.auditEntry(ctx, actor, action, audit.EntityDay, rec.ID.String(), rec, next, note, severity)
		if err != nil {
			return err
		}

		err = atomicallyErr(ctx, e.config.AuditRetry, func() error {
			return e.store.TransitionDay(ctx, next, rec.Status, entry)
		})
		switch {
		case errors.Is(err, ErrPeriodClosed):
			return &TransitionError{From: string(rec.Status), To: string(target), Reason: "period closed"}
		case errors.Is(err, ErrConcurrentUpdate):
			return &TransitionError{From: string(rec.Status), To: string(target), Reason: "day changed concurrently"}
		case err != nil:
			return err
		}

		before, after = rec, next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("day transitioned",
		"outlet_id", outletID,
		"date", types.FormatDate(date),
		"from", before.Status,
		"to", after.Status,
		"actor", actor.String(),
	)
	e.plugins.EmitDayTransitioned(ctx, before, after, actor)

	// Day-level rules only judge a day once it has been closed out.
	if after.Status != day.StatusOpen {
		w, err := e.window(ctx, outletID, date)
		if err != nil {
			e.logger.Error("day anomaly evaluation skipped",
				"outlet_id", outletID,
				"date", types.FormatDate(date),
				"error", err,
			)
		} else {
			w.Day = after
			e.detect(ctx, w)
		}
	}

	return after, nil
}

// transitionAudit picks the audit action, severity and note for a change
// that produced next.
func transitionAudit(next *day.Record, recon reconcile.Result) (audit.Action, audit.Severity, string) {
	switch next.Status {
	case day.StatusSubmitted:
		return audit.ActionDaySubmit, audit.SeverityInfo, ""
	case day.StatusLocked:
		sev := audit.SeverityInfo
		if recon.Mismatch || next.LockCause != "" {
			sev = audit.SeverityWarning
		}
		note := next.LockCause
		if note == "" {
			note = next.TallyComment
		}
		return audit.ActionDayLock, sev, note
	default:
		return audit.ActionDayUnlock, audit.SeverityCritical, next.UnlockReason
	}
}

// reconInput builds the tally input for rec over txns.
func reconInput(rec *day.Record, txns []*transaction.Transaction) reconcile.Input {
	return reconcile.Input{
		Currency:     rec.Currency,
		OpeningCash:  rec.OpeningCash,
		OpeningUPI:   rec.OpeningUPI,
		PhysicalCash: rec.PhysicalCash,
		PhysicalUPI:  rec.PhysicalUPI,
		Transactions: txns,
	}
}
