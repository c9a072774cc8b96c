package daybook

import (
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/closure"
	"github.com/xraph/daybook/reconcile"
	"github.com/xraph/daybook/rules"
	"github.com/xraph/daybook/types"
)

// Config holds engine-wide thresholds and calendar settings. Amounts are
// minor currency units (paise for INR).
type Config struct {
	// Thresholds classify a day's tally variance.
	Thresholds reconcile.Thresholds `json:"thresholds" mapstructure:"thresholds" yaml:"thresholds"`

	// LockVarianceEpsilon is the largest absolute variance that may be
	// locked without a tally comment.
	LockVarianceEpsilon int64 `json:"lock_variance_epsilon" mapstructure:"lock_variance_epsilon" yaml:"lock_variance_epsilon"`

	// MinUnlockReason is the minimum length of an unlock reason.
	MinUnlockReason int `json:"min_unlock_reason" mapstructure:"min_unlock_reason" yaml:"min_unlock_reason"`

	// BackdateWindows bounds how far back each role may post.
	BackdateWindows access.BackdateWindows `json:"backdate_windows" mapstructure:"backdate_windows" yaml:"backdate_windows"`

	// MaxAmount is the largest single transaction amount accepted.
	MaxAmount int64 `json:"max_amount" mapstructure:"max_amount" yaml:"max_amount"`

	// Currency is the ledger currency for every outlet.
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// Timezone and DayStartHour define the business calendar. Hours before
	// DayStartHour belong to the previous business date.
	Timezone     string `json:"timezone"       mapstructure:"timezone"       yaml:"timezone"`
	DayStartHour int    `json:"day_start_hour" mapstructure:"day_start_hour" yaml:"day_start_hour"`

	// AuditRetry bounds the retry of an atomic write whose store reported a
	// transient failure.
	AuditRetry RetryConfig `json:"audit_retry" mapstructure:"audit_retry" yaml:"audit_retry"`

	Rules   rules.Config   `json:"rules"   mapstructure:"rules"   yaml:"rules"`
	Closure closure.Config `json:"closure" mapstructure:"closure" yaml:"closure"`
}

// RetryConfig bounds exponential backoff.
type RetryConfig struct {
	MaxTries   uint          `json:"max_tries"   mapstructure:"max_tries"   yaml:"max_tries"`
	MaxElapsed time.Duration `json:"max_elapsed" mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:          reconcile.DefaultThresholds(),
		LockVarianceEpsilon: 0,
		MinUnlockReason:     10,
		BackdateWindows:     access.DefaultBackdateWindows(),
		MaxAmount:           1_00_00_000_00, // ₹1,00,00,000
		Currency:            types.DefaultCurrency,
		Timezone:            clock.DefaultTimezone,
		DayStartHour:        7,
		AuditRetry: RetryConfig{
			MaxTries:   5,
			MaxElapsed: 10 * time.Second,
		},
		Rules:   rules.DefaultConfig(),
		Closure: closure.DefaultConfig(),
	}
}
