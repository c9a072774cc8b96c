package day

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/reconcile"
)

// ViolationKind separates bad input from illegal transitions.
type ViolationKind string

const (
	KindValidation ViolationKind = "validation"
	KindTransition ViolationKind = "transition"
)

// Violation is returned by Machine.Check when a transition is refused.
type Violation struct {
	Kind   ViolationKind
	From   Status
	To     Status
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("day: %s %s -> %s: %s", v.Kind, v.From, v.To, v.Reason)
}

// Machine holds the transition rules for a business day.
type Machine struct {
	// MinUnlockReason is the minimum length of an unlock reason.
	MinUnlockReason int
	// VarianceEpsilon is the largest absolute variance, in minor units,
	// that may be locked without a tally comment.
	VarianceEpsilon int64
}

// Request describes one proposed transition.
type Request struct {
	Record *Record
	Target Status
	Actor  access.Actor
	Reason string
	Cause  string

	PeriodClosed bool
	// Reconciliation is recomputed from the authoritative transaction set
	// by the caller. Required for locks.
	Reconciliation *reconcile.Result
}

// Check validates req without side effects.
func (m Machine) Check(req Request) error {
	rec := req.Record
	from := rec.Status

	fail := func(kind ViolationKind, field, format string, args ...any) error {
		return &Violation{Kind: kind, From: from, To: req.Target, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	switch req.Target {
	case StatusSubmitted:
		if !req.Actor.Role.CanSubmit() {
			return fail(KindTransition, "actor", "role %s may not submit a day", req.Actor.Role)
		}
		if from != StatusOpen {
			return fail(KindTransition, "status", "only an open day can be submitted")
		}
		if req.PeriodClosed {
			return fail(KindTransition, "period", "period closed")
		}
		return m.checkComplete(rec, fail)

	case StatusLocked:
		if !req.Actor.Role.CanLock() {
			return fail(KindTransition, "actor", "role %s may not lock a day", req.Actor.Role)
		}
		if from == StatusLocked {
			return fail(KindTransition, "status", "day already locked")
		}
		if req.PeriodClosed {
			return fail(KindTransition, "period", "period closed")
		}
		if req.Cause == CauseAutoEscalation {
			return nil
		}
		if from == StatusOpen {
			if err := m.checkComplete(rec, fail); err != nil {
				return err
			}
		}
		if !rec.TallySet {
			return fail(KindTransition, "physical_tally", "physical tally not recorded")
		}
		if req.Reconciliation == nil {
			return fail(KindTransition, "reconciliation", "reconciliation result required")
		}
		if abs(req.Reconciliation.Variance.Amount) > m.VarianceEpsilon && strings.TrimSpace(rec.TallyComment) == "" {
			return fail(KindTransition, "tally_comment",
				"variance of %s requires a tally comment", req.Reconciliation.Variance)
		}
		return nil

	case StatusOpen:
		if n := len([]rune(strings.TrimSpace(req.Reason))); n < m.MinUnlockReason {
			return fail(KindValidation, "reason",
				"unlock reason must be at least %d characters", m.MinUnlockReason)
		}
		if !req.Actor.Role.CanUnlock() {
			return fail(KindTransition, "actor", "role %s may not unlock a day", req.Actor.Role)
		}
		if from != StatusLocked {
			return fail(KindTransition, "status", "only a locked day can be unlocked")
		}
		if req.PeriodClosed {
			return fail(KindTransition, "period", "period closed")
		}
		return nil

	default:
		return fail(KindValidation, "target", "unknown target state %q", req.Target)
	}
}

func (m Machine) checkComplete(rec *Record, fail func(ViolationKind, string, string, ...any) error) error {
	if !rec.OpeningSet {
		return fail(KindTransition, "opening_balance", "opening balances not set")
	}
	if rec.Totals.Count == 0 {
		return fail(KindTransition, "transactions", "day has no transactions")
	}
	return nil
}

// Apply returns the record as it looks after the transition. It does not
// validate; call Check first. totals, when non-nil, replaces the cached
// totals with a fresh recomputation.
func (m Machine) Apply(req Request, totals *Totals, now time.Time) *Record {
	next := req.Record.Clone()
	next.Status = req.Target
	next.Version++
	next.Touch(now)

	stamp := now.UTC()
	switch req.Target {
	case StatusSubmitted:
		next.SubmittedAt = &stamp
		next.SubmittedBy = req.Actor.ID
	case StatusLocked:
		if totals != nil {
			next.Totals = *totals
		}
		next.LockedAt = &stamp
		next.LockedBy = req.Actor.ID
		next.LockCause = req.Cause
	case StatusOpen:
		next.UnlockedAt = &stamp
		next.UnlockedBy = req.Actor.ID
		next.UnlockReason = strings.TrimSpace(req.Reason)
		next.LockedAt = nil
		next.LockedBy = ""
		next.LockCause = ""
		next.SyncedAt = nil
	}
	return next
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
