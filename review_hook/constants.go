package reviewhook

// Action constants for review events.
const (
	// Anomaly actions
	ActionAnomalyDetected = "anomaly.detected"

	// Recommendation actions
	ActionLockRecommended = "lock.recommended"

	// Gate actions
	ActionPostingDenied = "posting.denied"

	// Day actions
	ActionDayUnlocked   = "day.unlocked"
	ActionDayAutoLocked = "day.auto_locked"

	// Period actions
	ActionPeriodClosed = "period.closed"
)

// Resource constants for review events.
const (
	ResourceAnomaly        = "anomaly"
	ResourceRecommendation = "recommendation"
	ResourceDay            = "day"
	ResourcePeriod         = "period"
)

// Severity levels for review events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
