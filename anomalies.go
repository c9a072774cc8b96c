package daybook

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/rules"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// ──────────────────────────────────────────────────
// Rule evaluation
// ──────────────────────────────────────────────────

// window loads the look-back range of an outlet-date for the rule engine.
// Candidates are left for the caller to choose.
func (e *Engine) window(ctx context.Context, outletID string, date time.Time) (rules.Window, error) {
	from, to := e.rules.Lookback(date)
	txns, err := e.store.ListTransactions(ctx, transaction.ListOpts{
		OutletID: outletID,
		From:     from,
		To:       to,
	})
	if err != nil {
		return rules.Window{}, err
	}
	rec, err := e.findDay(ctx, outletID, types.DateOf(date))
	if err != nil {
		return rules.Window{}, err
	}
	return rules.Window{
		OutletID:     outletID,
		Date:         types.DateOf(date),
		Transactions: txns,
		Day:          rec,
	}, nil
}

// detect evaluates w and stores what the rules raise. Anomalies already on
// file under the same dedupe key are skipped. Failures are logged.
func (e *Engine) detect(ctx context.Context, w rules.Window) []*anomaly.Anomaly {
	now := e.clock.Now()

	var (
		created  []*anomaly.Anomaly
		critical bool
	)
	for _, a := range e.rules.Evaluate(w, now) {
		stored, isNew, err := e.store.RecordAnomaly(ctx, a)
		if err != nil {
			e.logger.Error("anomaly not recorded",
				"outlet_id", a.OutletID,
				"rule", a.RuleType,
				"error", err,
			)
			continue
		}
		if !isNew {
			continue
		}

		e.logger.Warn("anomaly detected",
			"outlet_id", stored.OutletID,
			"date", types.FormatDate(stored.Date),
			"rule", stored.RuleType,
			"severity", stored.Severity,
		)
		e.plugins.EmitAnomalyDetected(ctx, stored)
		created = append(created, stored)
		if stored.Severity == anomaly.SeverityCritical {
			critical = true
		}
	}

	if critical {
		if _, err := e.escalate(ctx, w.OutletID, now); err != nil {
			e.logger.Error("escalation skipped",
				"outlet_id", w.OutletID,
				"error", err,
			)
		}
	}
	return created
}

// escalate stores a lock recommendation for the outlet's current business
// date when enough consecutive critical anomalies have piled up. It returns nil when
// none is due.
func (e *Engine) escalate(ctx context.Context, outletID string, now time.Time) (*anomaly.Recommendation, error) {
	recent, err := e.store.ListAnomalies(ctx, anomaly.ListOpts{
		OutletID: outletID,
		Since:    e.escalator.Since(now),
	})
	if err != nil {
		return nil, err
	}

	today := e.calendar.BusinessDate(now)
	in := rules.EscalationInput{
		OutletID:  outletID,
		Date:      today,
		Now:       now,
		Anomalies: recent,
	}
	if rec, err := e.findDay(ctx, outletID, today); err != nil {
		return nil, err
	} else if rec != nil {
		in.DayStatus = rec.Status
	}
	existing, err := e.store.GetRecommendationFor(ctx, outletID, today)
	switch {
	case err == nil:
		in.Existing = existing
	case !IsNotFound(err):
		return nil, err
	}

	proposal := e.escalator.Decide(in)
	if proposal == nil {
		return nil, nil
	}
	stored, created, err := e.store.CreateRecommendation(ctx, proposal)
	if err != nil || !created {
		return nil, err
	}

	e.logger.Warn("day lock recommended",
		"outlet_id", outletID,
		"date", types.FormatDate(today),
		"anomalies", len(stored.AnomalyIDs),
	)
	e.plugins.EmitLockRecommended(ctx, stored)
	return stored, nil
}

// ScanAnomalies runs every rule over each date of an outlet in [from, to],
// treating all of a date's transactions as candidates. Anomalies already
// on file are not raised again; the newly stored ones are returned.
func (e *Engine) ScanAnomalies(ctx context.Context, outletID string, from, to time.Time) (found []*anomaly.Anomaly, err error) {
	ctx, span := e.startSpan(ctx, "ScanAnomalies", attribute.String("outlet_id", outletID))
	defer func() { endSpan(span, err) }()

	if outletID == "" {
		return nil, &ValidationError{Field: "outlet_id", Message: "is required"}
	}
	from, to = types.DateOf(from), types.DateOf(to)
	if to.Before(from) {
		return nil, &ValidationError{Field: "to", Message: "must not be before from"}
	}

	for d := from; !d.After(to); d = types.AddDays(d, 1) {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		w, err := e.window(ctx, outletID, d)
		if err != nil {
			return found, err
		}
		w.Candidates = w.OnDate()
		if len(w.Candidates) == 0 && w.Day == nil {
			continue
		}
		found = append(found, e.detect(ctx, w)...)
	}

	e.logger.Info("anomaly scan finished",
		"outlet_id", outletID,
		"from", types.FormatDate(from),
		"to", types.FormatDate(to),
		"found", len(found),
	)
	return found, nil
}

// ──────────────────────────────────────────────────
// Review
// ──────────────────────────────────────────────────

// ListAnomalies lists stored anomalies.
func (e *Engine) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	return e.store.ListAnomalies(ctx, opts)
}

// ResolveAnomaly marks an open anomaly resolved. The anomaly is kept; the
// resolution is audited.
func (e *Engine) ResolveAnomaly(ctx context.Context, anomalyID id.AnomalyID, actor access.Actor, note string) (a *anomaly.Anomaly, err error) {
	ctx, span := e.startSpan(ctx, "ResolveAnomaly", attribute.String("anomaly_id", anomalyID.String()))
	defer func() { endSpan(span, err) }()

	if err := e.check(actor); err != nil {
		return nil, err
	}
	if actor.Role.ReadOnly() {
		return nil, &TransitionError{From: string(anomaly.StatusOpen), To: string(anomaly.StatusResolved), Reason: "role may not resolve anomalies"}
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &ValidationError{Field: "note", Message: "is required"}
	}

	current, err := e.store.GetAnomaly(ctx, anomalyID)
	if err != nil {
		return nil, err
	}
	if current.Status == anomaly.StatusResolved {
		return nil, &TransitionError{From: string(current.Status), To: string(anomaly.StatusResolved), Reason: "anomaly already resolved"}
	}

	now := e.clock.Now().UTC()
	next := *current
	next.Status = anomaly.StatusResolved
	next.ResolvedBy = actor.ID
	next.ResolvedAt = &now
	next.ResolutionNote = note

	entry, err := e.auditEntry(ctx, actor, audit.ActionAnomalyResolve, audit.EntityAnomaly,
		anomalyID.String(), current, &next, note, audit.SeverityInfo)
	if err != nil {
		return nil, err
	}
	err = atomicallyErr(ctx, e.config.AuditRetry, func() error {
		return e.store.ResolveAnomaly(ctx, &next, entry)
	})
	if errors.Is(err, ErrConcurrentUpdate) {
		return nil, &TransitionError{From: string(anomaly.StatusOpen), To: string(anomaly.StatusResolved), Reason: "anomaly already resolved"}
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("anomaly resolved",
		"anomaly_id", anomalyID.String(),
		"actor", actor.String(),
	)
	return &next, nil
}

// ListRecommendations lists stored lock recommendations.
func (e *Engine) ListRecommendations(ctx context.Context, opts anomaly.RecommendationListOpts) ([]*anomaly.Recommendation, error) {
	return e.store.ListRecommendations(ctx, opts)
}

// ApplyRecommendation force-locks the recommended day through the state
// machine and marks the recommendation applied. A day that is already
// locked is left as is.
func (e *Engine) ApplyRecommendation(ctx context.Context, recID id.RecommendationID, actor access.Actor) (r *anomaly.Recommendation, err error) {
	ctx, span := e.startSpan(ctx, "ApplyRecommendation", attribute.String("recommendation_id", recID.String()))
	defer func() { endSpan(span, err) }()

	if err := e.check(actor); err != nil {
		return nil, err
	}
	current, err := e.pendingRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}

	state, err := e.DayState(ctx, current.OutletID, current.Date)
	if err != nil {
		return nil, err
	}
	if state != day.StatusLocked {
		if _, err := e.transition(ctx, current.OutletID, current.Date, day.StatusLocked, actor, current.Reason, day.CauseAutoEscalation); err != nil {
			return nil, err
		}
	}

	// The lock carries its own audit entry.
	next := e.decided(current, anomaly.RecommendationApplied, actor)
	if err := e.decide(ctx, next, nil); err != nil {
		return nil, err
	}

	e.logger.Info("lock recommendation applied",
		"recommendation_id", recID.String(),
		"outlet_id", current.OutletID,
		"date", types.FormatDate(current.Date),
		"actor", actor.String(),
	)
	return next, nil
}

// DismissRecommendation closes a recommendation without locking. The
// dismissal is audited with reason.
func (e *Engine) DismissRecommendation(ctx context.Context, recID id.RecommendationID, actor access.Actor, reason string) (r *anomaly.Recommendation, err error) {
	ctx, span := e.startSpan(ctx, "DismissRecommendation", attribute.String("recommendation_id", recID.String()))
	defer func() { endSpan(span, err) }()

	if err := e.check(actor); err != nil {
		return nil, err
	}
	if !actor.Role.HeadOffice() {
		return nil, &TransitionError{
			From:   string(anomaly.RecommendationPending),
			To:     string(anomaly.RecommendationDismissed),
			Reason: "role may not dismiss recommendations",
		}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "is required"}
	}

	current, err := e.pendingRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	next := e.decided(current, anomaly.RecommendationDismissed, actor)

	entry, err := e.auditEntry(ctx, actor, audit.ActionRecommendationDismiss, audit.EntityRecommendation,
		recID.String(), current, next, reason, audit.SeverityWarning)
	if err != nil {
		return nil, err
	}
	if err := e.decide(ctx, next, entry); err != nil {
		return nil, err
	}

	e.logger.Warn("lock recommendation dismissed",
		"recommendation_id", recID.String(),
		"outlet_id", current.OutletID,
		"actor", actor.String(),
	)
	return next, nil
}

func (e *Engine) pendingRecommendation(ctx context.Context, recID id.RecommendationID) (*anomaly.Recommendation, error) {
	r, err := e.store.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	if r.Status != anomaly.RecommendationPending {
		return nil, &TransitionError{From: string(r.Status), Reason: "recommendation already decided"}
	}
	return r, nil
}

func (e *Engine) decided(r *anomaly.Recommendation, status anomaly.RecommendationStatus, actor access.Actor) *anomaly.Recommendation {
	now := e.clock.Now().UTC()
	next := *r
	next.AnomalyIDs = append([]id.AnomalyID(nil), r.AnomalyIDs...)
	next.Status = status
	next.DecidedAt = &now
	next.DecidedBy = actor.ID
	return &next
}

func (e *Engine) decide(ctx context.Context, next *anomaly.Recommendation, entry *audit.Entry) error {
	err := atomicallyErr(ctx, e.config.AuditRetry, func() error {
		return e.store.DecideRecommendation(ctx, next, entry)
	})
	if errors.Is(err, ErrConcurrentUpdate) {
		return &TransitionError{From: string(anomaly.RecommendationPending), To: string(next.Status), Reason: "recommendation already decided"}
	}
	return err
}
