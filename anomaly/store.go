package anomaly

import (
	"context"
	"time"

	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/id"
)

// Store persists anomalies and lock recommendations.
//
// RecordAnomaly inserts a unless an anomaly with the same dedupe key
// exists, in which case it returns the stored one with created == false.
// CreateRecommendation does the same keyed on (outlet, date).
// ResolveAnomaly and DecideRecommendation write the change and entry
// atomically.
type Store interface {
	RecordAnomaly(ctx context.Context, a *Anomaly) (stored *Anomaly, created bool, err error)
	GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*Anomaly, error)
	ListAnomalies(ctx context.Context, opts ListOpts) ([]*Anomaly, error)
	ResolveAnomaly(ctx context.Context, a *Anomaly, entry *audit.Entry) error

	CreateRecommendation(ctx context.Context, r *Recommendation) (stored *Recommendation, created bool, err error)
	GetRecommendation(ctx context.Context, recID id.RecommendationID) (*Recommendation, error)
	GetRecommendationFor(ctx context.Context, outletID string, date time.Time) (*Recommendation, error)
	ListRecommendations(ctx context.Context, opts RecommendationListOpts) ([]*Recommendation, error)
	DecideRecommendation(ctx context.Context, r *Recommendation, entry *audit.Entry) error
}
