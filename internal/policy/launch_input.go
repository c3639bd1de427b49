package policy

import (
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/storage"
)

// buildLaunchInput builds the launch policy input document.
func buildLaunchInput(app *storage.App, rule *storage.TimeLimit, used int, now time.Time) map[string]any {
	input := map[string]any{
		"package":      app.PackageName,
		"display_name": displayName(app),
		"category":     app.Category,
		"minutes_used": used,
		"date":         now.Format(clock.DateLayout),
		"time":         now.Format("15:04"),
		"weekday":      int(now.Weekday()),
	}

	if rule != nil {
		limit := map[string]any{
			"allowed_start_time": rule.AllowedStartTime,
			"allowed_end_time":   rule.AllowedEndTime,
		}
		if rule.DailyLimitMinutes != nil {
			limit["daily_limit_minutes"] = *rule.DailyLimitMinutes
		}
		days := make([]any, len(rule.AllowedDays))
		for i, d := range rule.AllowedDays {
			days[i] = int(d)
		}
		limit["allowed_days"] = days
		input["time_limit"] = limit
	}

	return input
}
