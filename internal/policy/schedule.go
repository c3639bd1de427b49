package policy

import (
	"fmt"
	"slices"
	"time"

	"github.com/goodtune/tvwarden/internal/storage"
)

const (
	dayStart = "00:00"
	dayEnd   = "23:59"
)

// DayAllowed reports whether the rule permits weekday. No days means every day.
func DayAllowed(rule *storage.TimeLimit, weekday time.Weekday) bool {
	if rule == nil || len(rule.AllowedDays) == 0 {
		return true
	}
	return slices.Contains(rule.AllowedDays, weekday)
}

// Window returns the rule's allowed window with missing ends filled in.
func Window(rule *storage.TimeLimit) (start, end string) {
	start, end = rule.AllowedStartTime, rule.AllowedEndTime
	if start == "" {
		start = dayStart
	}
	if end == "" {
		end = dayEnd
	}
	return start, end
}

// WithinWindow reports whether now falls in the rule's allowed window, at
// minute resolution, inclusive at both ends. A start after the end is an
// overnight window. Rules without a window always match.
func WithinWindow(rule *storage.TimeLimit, now time.Time) (bool, error) {
	if rule == nil || !rule.HasSchedule() {
		return true, nil
	}
	startStr, endStr := Window(rule)
	start, err := minuteOfDay(startStr)
	if err != nil {
		return false, err
	}
	end, err := minuteOfDay(endStr)
	if err != nil {
		return false, err
	}
	current := now.Hour()*60 + now.Minute()

	if start <= end {
		return current >= start && current <= end, nil
	}
	return current >= start || current <= end, nil
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DailyLimit returns the rule's limit in minutes, or Unlimited.
func DailyLimit(rule *storage.TimeLimit) int {
	if rule == nil || rule.DailyLimitMinutes == nil {
		return Unlimited
	}
	return *rule.DailyLimitMinutes
}
