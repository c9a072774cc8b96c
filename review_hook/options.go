package reviewhook

import (
	"log/slog"
	"time"

	"github.com/xraph/daybook/anomaly"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithMinSeverity sets the lowest anomaly severity that is forwarded.
// The default is warning.
func WithMinSeverity(s anomaly.Severity) Option {
	return func(e *Extension) {
		e.minSeverity = s
	}
}

// WithClock sets the function used to stamp OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		e.now = now
	}
}

// WithEnabledActions sets which actions to forward.
// If not called, all actions are forwarded.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool)
			for _, action := range allActions() {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// allActions returns all known review actions.
func allActions() []string {
	return []string{
		ActionAnomalyDetected,
		ActionLockRecommended,
		ActionPostingDenied,
		ActionDayUnlocked,
		ActionDayAutoLocked,
		ActionPeriodClosed,
	}
}
