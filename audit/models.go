// Package audit defines the append-only audit trail of privileged ledger
// transitions.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/id"
)

// Action names the privileged transition an entry records.
type Action string

const (
	ActionDaySubmit             Action = "day.submit"
	ActionDayLock               Action = "day.lock"
	ActionDayUnlock             Action = "day.unlock"
	ActionManualJournal         Action = "transaction.manual_journal"
	ActionPeriodClose           Action = "period.close"
	ActionAnomalyResolve        Action = "anomaly.resolve"
	ActionRecommendationDismiss Action = "recommendation.dismiss"
)

// Entity names the kind of record an entry is about.
type Entity string

const (
	EntityDay            Entity = "daily_record"
	EntityTransaction    Entity = "transaction"
	EntityPeriod         Entity = "accounting_period"
	EntityAnomaly        Entity = "anomaly"
	EntityRecommendation Entity = "lock_recommendation"
)

// Severity grades an entry for audit review.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Origin carries request metadata captured from the caller's context.
type Origin struct {
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// Entry is one immutable audit log row.
type Entry struct {
	ID        id.AuditEntryID `json:"id"`
	Actor     access.Actor    `json:"actor"`
	Action    Action          `json:"action"`
	Entity    Entity          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Severity  Severity        `json:"severity"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    Origin          `json:"origin"`
}

// Snapshot marshals v for the Before/After fields. A nil v yields nil.
func Snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: snapshot: %w", err)
	}
	return b, nil
}

// ListOpts filters audit queries.
type ListOpts struct {
	Entity   Entity
	EntityID string
	Action   Action
	ActorID  string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Matches reports whether e satisfies the filter. Stores without a query
// language use it directly.
func (o ListOpts) Matches(e *Entry) bool {
	if o.Entity != "" && e.Entity != o.Entity {
		return false
	}
	if o.EntityID != "" && e.EntityID != o.EntityID {
		return false
	}
	if o.Action != "" && e.Action != o.Action {
		return false
	}
	if o.ActorID != "" && e.Actor.ID != o.ActorID {
		return false
	}
	if !o.Since.IsZero() && e.Timestamp.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !e.Timestamp.Before(o.Until) {
		return false
	}
	return true
}
