package day

import (
	"context"
	"time"

	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/id"
)

// Store persists daily records.
//
// Writes are optimistic: the caller bumps r.Version and the store applies
// the write only while the stored version is still r.Version-1, otherwise
// it fails with the concurrent-update sentinel.
//
// UpdateDay writes opening balances and physical counts and refuses locked
// days. TransitionDay writes a status change together with entry in one
// atomic unit, and refuses any day whose accounting period is closed.
type Store interface {
	CreateDay(ctx context.Context, r *Record) error
	GetDay(ctx context.Context, dayID id.DayID) (*Record, error)
	GetDayByDate(ctx context.Context, outletID string, date time.Time) (*Record, error)
	ListDays(ctx context.Context, opts ListOpts) ([]*Record, error)
	LastLockedDay(ctx context.Context, outletID string, before time.Time) (*Record, error)
	UpdateDay(ctx context.Context, r *Record) error
	TransitionDay(ctx context.Context, r *Record, from Status, entry *audit.Entry) error
	MarkSynced(ctx context.Context, dayID id.DayID, at time.Time) error
}
