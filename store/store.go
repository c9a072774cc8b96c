// Package store defines the aggregate persistence interface the engine runs
// on. Backends live in the sub-packages.
package store

import (
	"context"

	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
)

// Store is the unified storage interface for all Daybook entities.
//
// Compound writes (PostTransaction, TransitionDay, ClosePeriod,
// ResolveAnomaly, DecideRecommendation) take the audit entry describing
// them and commit both or neither. Failures a retry could cure are
// reported wrapping daybook.ErrStoreUnavailable.
type Store interface {
	day.Store
	transaction.Store
	period.Store
	anomaly.Store
	audit.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
