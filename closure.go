package daybook

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/closure"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/lock"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// facts gathers a month's days and transactions for the checklist. Every
// figure is recomputed from the transactions.
func (e *Engine) facts(ctx context.Context, month period.Month) (closure.Facts, error) {
	from, to := month.Start(), month.End()

	days, err := e.store.ListDays(ctx, day.ListOpts{From: from, To: to})
	if err != nil {
		return closure.Facts{}, err
	}
	txns, err := e.store.ListTransactions(ctx, transaction.ListOpts{From: from, To: to})
	if err != nil {
		return closure.Facts{}, err
	}

	byDay := make(map[string][]*transaction.Transaction, len(days))
	for _, t := range txns {
		byDay[t.DayID.String()] = append(byDay[t.DayID.String()], t)
	}

	f := closure.Facts{
		Month:        month,
		Currency:     e.config.Currency,
		Days:         make([]closure.DayFacts, 0, len(days)),
		Transactions: txns,
		TrialBalance: reconcile.BuildTrialBalance(e.config.Currency, txns),
	}
	for _, rec := range days {
		f.Days = append(f.Days, closure.DayFacts{
			Record:         rec,
			Reconciliation: reconcile.Calculate(reconInput(rec, byDay[rec.ID.String()]), e.config.Thresholds),
		})
	}
	return f, nil
}

// CanClose runs the closure checklist for month without changing anything.
func (e *Engine) CanClose(ctx context.Context, month period.Month) (res closure.Result, err error) {
	ctx, span := e.startSpan(ctx, "CanClose", attribute.String("month", string(month)))
	defer func() { endSpan(span, err) }()

	if _, err := period.ParseMonth(string(month)); err != nil {
		return closure.Result{}, &ValidationError{Field: "month", Message: "must be YYYY-MM"}
	}
	f, err := e.facts(ctx, month)
	if err != nil {
		return closure.Result{}, err
	}
	return closure.Validate(f, e.config.Closure), nil
}

// ClosePeriod closes month for good. A failing checklist returns
// *ChecklistFailed and leaves the period untouched; on success the period
// is frozen on a hashed snapshot and the closure is audited.
func (e *Engine) ClosePeriod(ctx context.Context, month period.Month, actor access.Actor) (p *period.Period, err error) {
	ctx, span := e.startSpan(ctx, "ClosePeriod", attribute.String("month", string(month)))
	defer func() { endSpan(span, err) }()

	if _, err := period.ParseMonth(string(month)); err != nil {
		return nil, &ValidationError{Field: "month", Message: "must be YYYY-MM"}
	}
	if err := e.check(actor); err != nil {
		return nil, err
	}
	refuse := func(reason string) error {
		return &TransitionError{From: string(period.StatusOpen), To: string(period.StatusClosed), Reason: reason}
	}
	if !actor.Role.CanClosePeriod() {
		return nil, refuse("role " + string(actor.Role) + " may not close a period")
	}

	err = e.locker.WithLock(ctx, lock.PeriodKey(string(month)), func(ctx context.Context) error {
		current, err := e.store.GetPeriod(ctx, month)
		switch {
		case err == nil && current.Closed():
			return refuse("period already closed")
		case err != nil && !IsNotFound(err):
			return err
		}

		f, err := e.facts(ctx, month)
		if err != nil {
			return err
		}
		res := closure.Validate(f, e.config.Closure)
		if !res.OK {
			return &ChecklistFailed{Failed: res.Failed, Warnings: res.Warnings}
		}

		snap := closure.BuildSnapshot(f)
		hash, err := snap.Hash()
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		next := &period.Period{
			Entity:       types.NewEntity(now),
			ID:           id.NewPeriodID(),
			Month:        month,
			Status:       period.StatusClosed,
			ClosedAt:     &now,
			ClosedBy:     actor.ID,
			Snapshot:     &snap,
			SnapshotHash: hash,
		}
		var before any
		if current != nil {
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
			before = current
		}

		entry, err := e.auditEntry(ctx, actor, audit.ActionPeriodClose, audit.EntityPeriod,
			string(month), before, next, hash, audit.SeverityCritical)
		if err != nil {
			return err
		}
		err = atomicallyErr(ctx, e.config.AuditRetry, func() error {
			return e.store.ClosePeriod(ctx, next, entry)
		})
		switch {
		case errors.Is(err, ErrPeriodNotReady):
			// A day reopened between the checklist and the commit.
			return &ChecklistFailed{Failed: []closure.Check{{
				Name:    closure.CheckDaysLocked,
				Message: "a day was unlocked while the period was closing",
			}}}
		case errors.Is(err, ErrPeriodClosed):
			return refuse("period already closed")
		case err != nil:
			return err
		}

		p = next
		return nil
	})
	if err != nil {
		var cf *ChecklistFailed
		if errors.As(err, &cf) {
			e.logger.Warn("period closure refused",
				"month", string(month),
				"actor", actor.String(),
				"failed", len(cf.Failed),
			)
		}
		return nil, err
	}

	e.logger.Info("period closed",
		"month", string(month),
		"actor", actor.String(),
		"snapshot_hash", p.SnapshotHash,
	)
	e.plugins.EmitPeriodClosed(ctx, p)
	return p, nil
}

// VerifyClosure recomputes a closed period's snapshot from stored data and
// reports whether it still hashes to the recorded value.
func (e *Engine) VerifyClosure(ctx context.Context, month period.Month) (ok bool, err error) {
	ctx, span := e.startSpan(ctx, "VerifyClosure", attribute.String("month", string(month)))
	defer func() { endSpan(span, err) }()

	p, err := e.store.GetPeriod(ctx, month)
	if err != nil {
		return false, err
	}
	if !p.Closed() {
		return false, &TransitionError{Reason: "period " + string(month) + " is not closed"}
	}
	f, err := e.facts(ctx, month)
	if err != nil {
		return false, err
	}
	hash, err := closure.BuildSnapshot(f).Hash()
	if err != nil {
		return false, err
	}
	if hash != p.SnapshotHash {
		e.logger.Error("closed period snapshot mismatch",
			"month", string(month),
			"recorded", p.SnapshotHash,
			"computed", hash,
		)
		return false, nil
	}
	return true, nil
}
