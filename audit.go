package daybook

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/id"
)

// auditEntry builds the entry for one privileged change. before and after
// are snapshotted as JSON; either may be nil.
func (e *Engine) auditEntry(
	ctx context.Context,
	actor access.Actor,
	action audit.Action,
	entity audit.Entity, entityID string,
	before, after any,
	reason string,
	severity audit.Severity,
) (*audit.Entry, error) {
	entry := &audit.Entry{
		ID:        id.NewAuditEntryID(),
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Reason:    reason,
		Severity:  severity,
		Timestamp: e.clock.Now().UTC(),
		Origin:    OriginFrom(ctx),
	}

	var err error
	if before != nil {
		if entry.Before, err = audit.Snapshot(before); err != nil {
			return nil, fmt.Errorf("daybook: snapshot %s: %w", entity, err)
		}
	}
	if after != nil {
		if entry.After, err = audit.Snapshot(after); err != nil {
			return nil, fmt.Errorf("daybook: snapshot %s: %w", entity, err)
		}
	}
	return entry, nil
}

// atomically runs one store unit, retrying it with exponential backoff
// while the store reports a transient failure. Every other error is
// returned on the first attempt.
func atomically[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(cfg.MaxTries),
		backoff.WithMaxElapsedTime(cfg.MaxElapsed),
	)

	// A permanent error on the last allowed try comes back still wrapped.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}

// atomicallyErr is atomically for units without a result.
func atomicallyErr(ctx context.Context, cfg RetryConfig, op func() error) error {
	_, err := atomically(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
