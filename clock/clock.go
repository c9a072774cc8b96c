// Package clock is the single time authority for Daybook. Everything that
// needs "now" or "today" receives a Clock instead of calling time.Now.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/xraph/daybook/types"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Fixed is a settable clock for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Calendar maps instants to outlet business dates.
//
// A business day starts at DayStartHour local time: with the default of 7,
// a sale rung up at 02:30 belongs to the previous calendar date.
type Calendar struct {
	Location     *time.Location
	DayStartHour int
}

// DefaultTimezone is the zone outlets trade in unless configured otherwise.
const DefaultTimezone = "Asia/Kolkata"

// NewCalendar loads the named zone. An empty name selects DefaultTimezone.
func NewCalendar(tz string, dayStartHour int) (Calendar, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Minimal containers often lack tzdata; IST has no DST so a fixed
		// zone is exact.
		if tz != DefaultTimezone {
			return Calendar{}, fmt.Errorf("clock: load location %q: %w", tz, err)
		}
		loc = time.FixedZone("IST", 5*3600+30*60)
	}
	if dayStartHour < 0 || dayStartHour > 23 {
		return Calendar{}, fmt.Errorf("clock: day start hour %d out of range", dayStartHour)
	}
	return Calendar{Location: loc, DayStartHour: dayStartHour}, nil
}

// Local converts t into the calendar's location.
func (c Calendar) Local(t time.Time) time.Time {
	if c.Location == nil {
		return t.UTC()
	}
	return t.In(c.Location)
}

// BusinessDate returns the business date that t belongs to.
func (c Calendar) BusinessDate(t time.Time) time.Time {
	local := c.Local(t)
	if local.Hour() < c.DayStartHour {
		local = local.AddDate(0, 0, -1)
	}
	return types.DateOf(local)
}

// Today returns the current business date according to clk.
func (c Calendar) Today(clk Clock) time.Time {
	return c.BusinessDate(clk.Now())
}

// ClockOf returns the local wall-clock time of day of t as minutes since
// midnight. Rules use it to test overnight windows.
func (c Calendar) ClockOf(t time.Time) int {
	local := c.Local(t)
	return local.Hour()*60 + local.Minute()
}
