package policy

import (
	"testing"
	"time"

	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 5, hour, minute, 30, 0, time.Local)
}

func TestWithinWindow(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		now   time.Time
		want  bool
	}{
		{name: "no window", now: at(3, 0), want: true},
		{name: "inside", start: "08:00", end: "20:00", now: at(12, 0), want: true},
		{name: "at start", start: "08:00", end: "20:00", now: at(8, 0), want: true},
		{name: "at end", start: "08:00", end: "20:00", now: at(20, 0), want: true},
		{name: "before start", start: "08:00", end: "20:00", now: at(7, 59), want: false},
		{name: "after end", start: "08:00", end: "20:00", now: at(20, 1), want: false},
		{name: "only start", start: "18:00", now: at(23, 59), want: true},
		{name: "only start before", start: "18:00", now: at(17, 0), want: false},
		{name: "only end", end: "09:00", now: at(0, 0), want: true},
		{name: "only end after", end: "09:00", now: at(9, 1), want: false},
		{name: "overnight late", start: "22:00", end: "06:00", now: at(23, 0), want: true},
		{name: "overnight early", start: "22:00", end: "06:00", now: at(5, 0), want: true},
		{name: "overnight gap", start: "22:00", end: "06:00", now: at(12, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &storage.TimeLimit{PackageName: testPackage, AllowedStartTime: tt.start, AllowedEndTime: tt.end}
			got, err := WithinWindow(rule, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithinWindowNilRule(t *testing.T) {
	got, err := WithinWindow(nil, at(12, 0))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestWithinWindowInvalidTime(t *testing.T) {
	_, err := WithinWindow(&storage.TimeLimit{AllowedStartTime: "8am"}, at(12, 0))
	assert.Error(t, err)
}

func TestDayAllowed(t *testing.T) {
	weekend := &storage.TimeLimit{AllowedDays: []time.Weekday{time.Saturday, time.Sunday}}
	assert.True(t, DayAllowed(weekend, time.Sunday))
	assert.False(t, DayAllowed(weekend, time.Wednesday))
	assert.True(t, DayAllowed(&storage.TimeLimit{}, time.Wednesday))
	assert.True(t, DayAllowed(nil, time.Monday))
}

func TestDailyLimit(t *testing.T) {
	assert.Equal(t, Unlimited, DailyLimit(nil))
	assert.Equal(t, Unlimited, DailyLimit(&storage.TimeLimit{}))
	assert.Equal(t, 45, DailyLimit(&storage.TimeLimit{DailyLimitMinutes: storage.Minutes(45)}))
}

func TestUsageIncrement(t *testing.T) {
	assert.Equal(t, 1, UsageIncrement(0))
	assert.Equal(t, 1, UsageIncrement(10*time.Second))
	assert.Equal(t, 1, UsageIncrement(90*time.Second))
	assert.Equal(t, 3, UsageIncrement(3*time.Minute))
}
