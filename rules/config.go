package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/daybook/anomaly"
)

// Config holds rule thresholds. Amounts are minor currency units; clock
// times are minutes since local midnight.
type Config struct {
	// CashSpikeCeiling flags cash sales above it as critical.
	CashSpikeCeiling int64 `json:"cash_spike_ceiling" mapstructure:"cash_spike_ceiling" yaml:"cash_spike_ceiling"`

	MaxReversalsPerDay int `json:"max_reversals_per_day" mapstructure:"max_reversals_per_day" yaml:"max_reversals_per_day"`

	MidnightStart      int   `json:"midnight_start"       mapstructure:"midnight_start"       yaml:"midnight_start"`
	MidnightEnd        int   `json:"midnight_end"         mapstructure:"midnight_end"         yaml:"midnight_end"`
	MidnightWarnAmount int64 `json:"midnight_warn_amount" mapstructure:"midnight_warn_amount" yaml:"midnight_warn_amount"`

	RefundWindowDays   int             `json:"refund_window_days"   mapstructure:"refund_window_days"   yaml:"refund_window_days"`
	RefundRatioPercent decimal.Decimal `json:"refund_ratio_percent" mapstructure:"refund_ratio_percent" yaml:"refund_ratio_percent"`
	RefundMinSales     int64           `json:"refund_min_sales"     mapstructure:"refund_min_sales"     yaml:"refund_min_sales"`

	BigTransactionCeiling int64 `json:"big_transaction_ceiling" mapstructure:"big_transaction_ceiling" yaml:"big_transaction_ceiling"`

	// PostLockGrace is how long after a lock a late timestamp is tolerated.
	PostLockGrace time.Duration `json:"post_lock_grace" mapstructure:"post_lock_grace" yaml:"post_lock_grace"`

	HighCreditPercent  decimal.Decimal `json:"high_credit_percent"   mapstructure:"high_credit_percent"   yaml:"high_credit_percent"`
	HighCreditMinSales int64           `json:"high_credit_min_sales" mapstructure:"high_credit_min_sales" yaml:"high_credit_min_sales"`

	EscalationCount  int           `json:"escalation_count"  mapstructure:"escalation_count"  yaml:"escalation_count"`
	EscalationWindow time.Duration `json:"escalation_window" mapstructure:"escalation_window" yaml:"escalation_window"`

	Disabled []anomaly.RuleType `json:"disabled,omitempty" mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		CashSpikeCeiling:      50_000_00,
		MaxReversalsPerDay:    3,
		MidnightStart:         1,
		MidnightEnd:           6*60 + 59,
		MidnightWarnAmount:    10_000_00,
		RefundWindowDays:      7,
		RefundRatioPercent:    decimal.NewFromInt(50),
		RefundMinSales:        1_000_00,
		BigTransactionCeiling: 1_00_000_00,
		PostLockGrace:         time.Minute,
		HighCreditPercent:     decimal.NewFromInt(50),
		HighCreditMinSales:    1_000_00,
		EscalationCount:       3,
		EscalationWindow:      24 * time.Hour,
	}
}

func (c Config) disabled(t anomaly.RuleType) bool {
	for _, d := range c.Disabled {
		if d == t {
			return true
		}
	}
	return false
}
