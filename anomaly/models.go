// Package anomaly models the signals raised by the rule engine and the lock
// recommendations that escalation produces from them.
package anomaly

import (
	"strings"
	"time"

	"github.com/xraph/daybook/id"
)

// RuleType names the rule that raised an anomaly.
type RuleType string

const (
	RuleCashSpike       RuleType = "cash_sale_spike"
	RuleReversalLimit   RuleType = "daily_reversal_limit"
	RuleMidnightWindow  RuleType = "midnight_window"
	RuleRefundRatio     RuleType = "refund_sale_ratio"
	RuleManualJournal   RuleType = "manual_journal"
	RuleBigTransaction  RuleType = "big_transaction"
	RulePostLockPosting RuleType = "post_lock_posting"
	RuleZeroCashDay     RuleType = "zero_cash_day"
	RuleHighCreditDay   RuleType = "high_credit_day"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Status is the review state of an anomaly.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Anomaly is an append-only fact. Resolving sets the status fields; the
// record is never deleted.
type Anomaly struct {
	ID             id.AnomalyID       `json:"id"`
	OutletID       string             `json:"outlet_id"`
	Date           time.Time          `json:"business_date"`
	RuleType       RuleType           `json:"rule_type"`
	Severity       Severity           `json:"severity"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Bucket         string             `json:"bucket"`
	DedupeKey      string             `json:"dedupe_key"`
	TransactionIDs []id.TransactionID `json:"transaction_ids,omitempty"`
	RequiresReview bool               `json:"requires_review"`
	DetectedAt     time.Time          `json:"detected_at"`
	Status         Status             `json:"status"`
	ResolvedBy     string             `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	ResolutionNote string             `json:"resolution_note,omitempty"`
}

// DedupeKey builds the identity of an anomaly's underlying cause.
func DedupeKey(rule RuleType, outletID, bucket string) string {
	return strings.Join([]string{string(rule), outletID, bucket}, "|")
}

// ListOpts filters anomaly queries.
type ListOpts struct {
	OutletID string
	RuleType RuleType
	Severity Severity
	Status   Status
	Since    time.Time
	Limit    int
	Offset   int
}

// Matches reports whether a satisfies the filter.
func (o ListOpts) Matches(a *Anomaly) bool {
	if o.OutletID != "" && a.OutletID != o.OutletID {
		return false
	}
	if o.RuleType != "" && a.RuleType != o.RuleType {
		return false
	}
	if o.Severity != "" && a.Severity != o.Severity {
		return false
	}
	if o.Status != "" && a.Status != o.Status {
		return false
	}
	if !o.Since.IsZero() && a.DetectedAt.Before(o.Since) {
		return false
	}
	return true
}

// RecommendationStatus tracks what happened to a lock recommendation.
type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "pending"
	RecommendationApplied   RecommendationStatus = "applied"
	RecommendationDismissed RecommendationStatus = "dismissed"
)

// Recommendation proposes force-locking an outlet's day after repeated
// critical anomalies. It is surfaced for review; applying it goes through
// the ordinary day lock.
type Recommendation struct {
	ID         id.RecommendationID  `json:"id"`
	OutletID   string               `json:"outlet_id"`
	Date       time.Time            `json:"business_date"`
	AnomalyIDs []id.AnomalyID       `json:"anomaly_ids"`
	Reason     string               `json:"reason"`
	Status     RecommendationStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	DecidedAt  *time.Time           `json:"decided_at,omitempty"`
	DecidedBy  string               `json:"decided_by,omitempty"`
}

// RecommendationListOpts filters recommendation queries.
type RecommendationListOpts struct {
	OutletID string
	Status   RecommendationStatus
	Limit    int
	Offset   int
}
