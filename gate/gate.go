// Package gate is the single admission check for ledger access. Every entry
// point that writes to or reads from an outlet-day asks Authorize; nothing
// else re-implements the rules.
package gate

import (
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/types"
)

// Access distinguishes reads from writes.
type Access string

const (
	Write Access = "write"
	Read  Access = "read"
)

// Rule names the rule that decided a request.
type Rule string

const (
	RulePeriodClosed   Rule = "period_closed"
	RuleDayLocked      Rule = "day_locked"
	RuleFutureDate     Rule = "future_date"
	RuleReadOnlyRole   Rule = "read_only_role"
	RuleBackdateWindow Rule = "backdate_window"
	RuleAllow          Rule = "allow"
)

// Denial reasons. They reach end users verbatim.
const (
	ReasonPeriodClosed   = "period closed"
	ReasonDayLocked      = "day locked"
	ReasonFutureDate     = "future date"
	ReasonReadOnlyRole   = "read-only role"
	ReasonBackdateWindow = "backdate window expired"
)

// Request is one proposed access to an outlet-day.
type Request struct {
	Access Access
	// Date is the business date being accessed; Today is the current
	// business date according to the engine clock.
	Date  time.Time
	Today time.Time
	Role  access.Role

	DayStatus    day.Status
	PeriodStatus period.Status
	// HasReadGrant is the time-bound read exception. It never unlocks
	// writes.
	HasReadGrant bool

	// Windows bounds backdated writes per role. Nil disables the check.
	Windows access.BackdateWindows
}

// Decision is the gate's answer.
type Decision struct {
	Allowed bool
	Rule    Rule
	Reason  string
}

func deny(rule Rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason}
}

var allow = Decision{Allowed: true, Rule: RuleAllow}

// Authorize evaluates the rules in order; the first match decides.
func Authorize(req Request) Decision {
	if req.Access == Read {
		return authorizeRead(req)
	}

	if req.PeriodStatus == period.StatusClosed {
		return deny(RulePeriodClosed, ReasonPeriodClosed)
	}
	if req.DayStatus == day.StatusLocked {
		return deny(RuleDayLocked, ReasonDayLocked)
	}

	date, today := types.DateOf(req.Date), types.DateOf(req.Today)
	if date.After(today) {
		return deny(RuleFutureDate, ReasonFutureDate)
	}
	if req.Role.ReadOnly() {
		return deny(RuleReadOnlyRole, ReasonReadOnlyRole)
	}
	if req.Windows != nil {
		window := req.Windows.Window(req.Role)
		if today.Sub(date) > window {
			return deny(RuleBackdateWindow, ReasonBackdateWindow)
		}
	}
	return allow
}

func authorizeRead(req Request) Decision {
	if req.DayStatus == day.StatusLocked && req.Role.ReadOnly() && !req.HasReadGrant {
		return deny(RuleDayLocked, ReasonDayLocked)
	}
	return allow
}
