package extension

import "time"

// Config holds the Daybook extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.daybook" or "daybook" keys).
// Zero values fall back to the engine defaults.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Timezone and DayStartHour define the business calendar
	// (default: Asia/Kolkata, 7).
	Timezone     string `json:"timezone"       mapstructure:"timezone"       yaml:"timezone"`
	DayStartHour int    `json:"day_start_hour" mapstructure:"day_start_hour" yaml:"day_start_hour"`

	// Currency is the ledger currency (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// MinUnlockReason is the minimum unlock reason length (default: 10).
	MinUnlockReason int `json:"min_unlock_reason" mapstructure:"min_unlock_reason" yaml:"min_unlock_reason"`

	// MaxAmount is the largest single posting in minor units.
	MaxAmount int64 `json:"max_amount" mapstructure:"max_amount" yaml:"max_amount"`

	// EscalationCount and EscalationWindow tune lock recommendations
	// (default: 3 critical anomalies within 24h).
	EscalationCount  int           `json:"escalation_count"  mapstructure:"escalation_count"  yaml:"escalation_count"`
	EscalationWindow time.Duration `json:"escalation_window" mapstructure:"escalation_window" yaml:"escalation_window"`

	// BlockOnMajorVariance makes major-variance days fail month closure.
	BlockOnMajorVariance bool `json:"block_on_major_variance" mapstructure:"block_on_major_variance" yaml:"block_on_major_variance"`

	// RedisAddr, when set, switches the per-day locks from in-process to
	// Redis so several instances can share one store.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// LockTTL bounds how long a Redis lock is held (default: 30s).
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:         "Asia/Kolkata",
		DayStartHour:     7,
		Currency:         "inr",
		MinUnlockReason:  10,
		MaxAmount:        1_00_00_000_00,
		EscalationCount:  3,
		EscalationWindow: 24 * time.Hour,
		LockTTL:          30 * time.Second,
	}
}
