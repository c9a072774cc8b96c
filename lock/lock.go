// Package lock serializes writers per ledger key. The engine holds a day key
// while it posts, tallies or transitions a day, and a period key while it
// closes a month.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/daybook/types"
)

var (
	// ErrNotObtained is returned when a lock could not be acquired before
	// the backend gave up.
	ErrNotObtained = errors.New("lock: not obtained")
	// ErrEmptyKey is returned for a blank lock key.
	ErrEmptyKey = errors.New("lock: empty key")
)

// Locker runs fn while holding the named lock. The lock is released when
// fn returns.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// DayKey is the single-writer key of one outlet-day.
func DayKey(outletID string, date time.Time) string {
	return "daybook:day:" + outletID + ":" + types.FormatDate(date)
}

// PeriodKey is the single-writer key of one accounting month.
func PeriodKey(month string) string {
	return "daybook:period:" + month
}

// Local is an in-process Locker. It only serializes callers sharing the
// same Local value.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// WithLock implements Locker. It gives up with ctx's error if the context
// ends while waiting.
func (l *Local) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}

	s := l.ref(key)
	defer l.unref(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
