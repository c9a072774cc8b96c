package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/types"
)

// Escalator turns a run of consecutive critical anomalies into a lock
// recommendation.
type Escalator struct {
	Count  int
	Window time.Duration
}

// NewEscalator returns the escalator configured by cfg.
func NewEscalator(cfg Config) Escalator {
	return Escalator{Count: cfg.EscalationCount, Window: cfg.EscalationWindow}
}

// EscalationInput is the state the escalator decides on.
type EscalationInput struct {
	OutletID string
	// Date is the outlet's current business date, the day a lock would
	// apply to.
	Date time.Time
	Now  time.Time

	// Anomalies are the outlet's recent anomalies of every severity. A
	// non-critical anomaly inside the window breaks the run.
	Anomalies []*anomaly.Anomaly

	// DayStatus is the status of Date's record, empty when none exists.
	DayStatus day.Status
	// Existing is the recommendation already stored for (outlet, Date).
	Existing *anomaly.Recommendation
}

// Since returns the start of the escalation window ending at now.
func (e Escalator) Since(now time.Time) time.Time {
	return now.Add(-e.Window)
}

// Decide returns a new pending recommendation, or nil when none is due.
// It walks the outlet's anomalies inside the window from the newest and
// recommends when the leading run of criticals reaches Count.
func (e Escalator) Decide(in EscalationInput) *anomaly.Recommendation {
	if e.Count <= 0 || in.DayStatus == day.StatusLocked || in.Existing != nil {
		return nil
	}

	since := e.Since(in.Now)
	var recent []*anomaly.Anomaly
	for _, a := range in.Anomalies {
		if a.OutletID != in.OutletID {
			continue
		}
		if a.DetectedAt.Before(since) || a.DetectedAt.After(in.Now) {
			continue
		}
		recent = append(recent, a)
	}
	// Newest first; within one detection instant criticals lead.
	sort.SliceStable(recent, func(i, j int) bool {
		a, b := recent[i], recent[j]
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.After(b.DetectedAt)
		}
		return a.Severity == anomaly.SeverityCritical && b.Severity != anomaly.SeverityCritical
	})

	var ids []id.AnomalyID
	var last time.Time
	for _, a := range recent {
		if a.Severity != anomaly.SeverityCritical {
			// A lesser finding raised alongside a critical is part of the
			// same event.
			if len(ids) > 0 && a.DetectedAt.Equal(last) {
				continue
			}
			break
		}
		ids = append(ids, a.ID)
		last = a.DetectedAt
	}
	if len(ids) < e.Count {
		return nil
	}

	return &anomaly.Recommendation{
		ID:         id.NewRecommendationID(),
		OutletID:   in.OutletID,
		Date:       types.DateOf(in.Date),
		AnomalyIDs: ids,
		Reason:     fmt.Sprintf("%d consecutive critical anomalies within %s", len(ids), e.Window),
		Status:     anomaly.RecommendationPending,
		CreatedAt:  in.Now.UTC(),
	}
}
