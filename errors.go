package daybook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/daybook/closure"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/gate"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound         = errors.New("daybook: not found")
	ErrAlreadyExists    = errors.New("daybook: already exists")
	ErrConcurrentUpdate = errors.New("daybook: concurrent update")

	// Entity lookups
	ErrDayNotFound            = errors.New("daybook: day not found")
	ErrTransactionNotFound    = errors.New("daybook: transaction not found")
	ErrPeriodNotFound         = errors.New("daybook: period not found")
	ErrAnomalyNotFound        = errors.New("daybook: anomaly not found")
	ErrRecommendationNotFound = errors.New("daybook: recommendation not found")

	// State guards raised by stores inside an atomic unit
	ErrDayLocked      = errors.New("daybook: day locked")
	ErrDayNotLocked   = errors.New("daybook: day not locked")
	ErrPeriodClosed   = errors.New("daybook: period closed")
	ErrPeriodNotReady = errors.New("daybook: period has unlocked days")

	// Store errors
	ErrStoreUnavailable = errors.New("daybook: store unavailable")
	ErrStoreClosed      = errors.New("daybook: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("daybook: validation failed for %s: %s", e.Field, e.Message)
}

// GateDenied is returned when the transaction gate refuses an access. Reason
// is the user-facing denial text.
type GateDenied struct {
	Rule   gate.Rule
	Reason string
}

func (e *GateDenied) Error() string {
	return "daybook: gate denied: " + e.Reason
}

// TransitionError is an illegal state change of a day or period.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == "" && e.To == "" {
		return "daybook: transition refused: " + e.Reason
	}
	return fmt.Sprintf("daybook: transition %s -> %s refused: %s", e.From, e.To, e.Reason)
}

// ChecklistFailed is returned when a period fails its closure checklist.
// Every failing check is listed.
type ChecklistFailed struct {
	Failed   []closure.Check
	Warnings []closure.Check
}

func (e *ChecklistFailed) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, c := range e.Failed {
		names = append(names, c.Name)
	}
	return "daybook: closure checklist failed: " + strings.Join(names, ", ")
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "daybook: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("daybook: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDayNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrAnomalyNotFound) ||
		errors.Is(err, ErrRecommendationNotFound)
}

// IsGateDenied reports whether err is a gate denial.
func IsGateDenied(err error) bool {
	var gd *GateDenied
	return errors.As(err, &gd)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransition reports whether err is a refused state change.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// denied maps a gate decision to its error, nil when allowed.
func denied(d gate.Decision) error {
	if d.Allowed {
		return nil
	}
	return &GateDenied{Rule: d.Rule, Reason: d.Reason}
}

// violationError maps a state machine refusal onto the public error types.
func violationError(err error) error {
	var v *day.Violation
	if !errors.As(err, &v) {
		return err
	}
	if v.Kind == day.KindValidation {
		return &ValidationError{Field: v.Field, Message: v.Reason}
	}
	return &TransitionError{From: string(v.From), To: string(v.To), Reason: v.Reason}
}

// gateError maps store guard sentinels raised inside a posting unit onto
// the denial a caller would have seen had the gate fired up front.
func gateError(err error) error {
	switch {
	case errors.Is(err, ErrPeriodClosed):
		return &GateDenied{Rule: gate.RulePeriodClosed, Reason: gate.ReasonPeriodClosed}
	case errors.Is(err, ErrDayLocked):
		return &GateDenied{Rule: gate.RuleDayLocked, Reason: gate.ReasonDayLocked}
	}
	return err
}
