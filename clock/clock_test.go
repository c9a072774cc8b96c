package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/clock"
	"github.com/xraph/daybook/types"
)

func TestBusinessDateHonoursDayStart(t *testing.T) {
	cal, err := clock.NewCalendar("Asia/Kolkata", 7)
	require.NoError(t, err)

	ist := cal.Location

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"after start", time.Date(2026, 10, 16, 9, 0, 0, 0, ist), "2026-10-16"},
		{"exactly at start", time.Date(2026, 10, 16, 7, 0, 0, 0, ist), "2026-10-16"},
		{"before start", time.Date(2026, 10, 16, 6, 59, 0, 0, ist), "2026-10-15"},
		{"just after midnight", time.Date(2026, 10, 16, 0, 5, 0, 0, ist), "2026-10-15"},
		{"utc input", time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC), "2026-10-16"}, // 08:30 IST
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types.FormatDate(cal.BusinessDate(tt.at)))
		})
	}
}

func TestCalendarRejectsBadHour(t *testing.T) {
	_, err := clock.NewCalendar("Asia/Kolkata", 24)
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(start)

	assert.Equal(t, start, clk.Now())

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	cal, err := clock.NewCalendar("UTC", 0)
	require.NoError(t, err)
	assert.Equal(t, types.Date(2026, 10, 16), cal.Today(clk))
	assert.Equal(t, 11*60+30, cal.ClockOf(clk.Now()))
}
