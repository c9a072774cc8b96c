package period

import (
	"context"

	"github.com/xraph/daybook/audit"
)

// Store persists accounting periods.
//
// ClosePeriod is one atomic unit. Under an exclusive hold on the period it
// re-checks that the month has no unlocked day (the not-ready sentinel),
// that the period is not already closed (the period-closed sentinel), then
// stores p and appends entry. Posting holds the same period in shared mode,
// so a transaction cannot slip into a month while it is being closed.
type Store interface {
	GetPeriod(ctx context.Context, month Month) (*Period, error)
	ListPeriods(ctx context.Context) ([]*Period, error)
	ClosePeriod(ctx context.Context, p *Period, entry *audit.Entry) error
}
