package storage

import (
	"fmt"
	"time"
)

// App is an application record in the allowlist registry.
type App struct {
	PackageName string    `json:"package_name"`
	DisplayName string    `json:"display_name"`
	Installed   bool      `json:"installed"`
	Allowed     bool      `json:"allowed"`
	Category    string    `json:"category"` // "streaming", "games", "education"
	UpdatedAt   time.Time `json:"updated_at"`
}

// TimeLimit restricts a package by daily minutes, time of day and weekday.
type TimeLimit struct {
	PackageName       string         `json:"package_name"`
	DailyLimitMinutes *int           `json:"daily_limit_minutes,omitempty"` // nil = unlimited
	AllowedStartTime  string         `json:"allowed_start_time,omitempty"`  // "08:00"
	AllowedEndTime    string         `json:"allowed_end_time,omitempty"`    // "20:00"
	AllowedDays       []time.Weekday `json:"allowed_days,omitempty"`        // 0=Sunday, 6=Saturday; empty = every day
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HasSchedule reports whether the rule restricts the time of day.
func (r *TimeLimit) HasSchedule() bool {
	return r.AllowedStartTime != "" || r.AllowedEndTime != ""
}

// Validate checks the invariants every stored rule must satisfy.
func (r *TimeLimit) Validate() error {
	if r.PackageName == "" {
		return fmt.Errorf("time limit package_name is required")
	}
	if r.DailyLimitMinutes != nil && *r.DailyLimitMinutes < 0 {
		return fmt.Errorf("daily limit must be non-negative, got %d", *r.DailyLimitMinutes)
	}
	for _, t := range []string{r.AllowedStartTime, r.AllowedEndTime} {
		if t == "" {
			continue
		}
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid time of day %q (want HH:MM)", t)
		}
	}
	for _, d := range r.AllowedDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}

// Minutes returns a pointer to m, for building rules with a daily limit.
func Minutes(m int) *int {
	return &m
}

// DailyUsage aggregates usage per day and package.
type DailyUsage struct {
	Date        string `json:"date"` // "2006-01-02", device-local
	PackageName string `json:"package_name"`
	Minutes     int    `json:"minutes"`
}
