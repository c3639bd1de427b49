package policy

import (
	"fmt"
	"time"
)

// MonitorAction is the decision engine's verdict for one foreground sample.
// It is closed: the only implementations are Ignore, BlockNotAllowed,
// EnforceTimeLimit and RecordUsage.
type MonitorAction interface {
	// Kind is a stable lowercase name, used for logs and metric labels.
	Kind() string
	monitorAction()
}

// Ignore means the foreground app is the supervisor or a reserved system app.
type Ignore struct{}

// BlockNotAllowed means the app is unknown to the registry or not allowed.
type BlockNotAllowed struct {
	Package string
}

// EnforceTimeLimit means the daily limit is already used up.
type EnforceTimeLimit struct {
	Package     string
	DisplayName string
	MinutesUsed int
	DailyLimit  int
}

// RecordUsage means the app may run and the ledger has been credited.
type RecordUsage struct {
	Package          string
	DisplayName      string
	IncrementMinutes int
	NewTotalMinutes  int
}

func (Ignore) Kind() string           { return "ignore" }
func (BlockNotAllowed) Kind() string  { return "block_not_allowed" }
func (EnforceTimeLimit) Kind() string { return "enforce_time_limit" }
func (RecordUsage) Kind() string      { return "record_usage" }

func (Ignore) monitorAction()           {}
func (BlockNotAllowed) monitorAction()  {}
func (EnforceTimeLimit) monitorAction() {}
func (RecordUsage) monitorAction()      {}

// LaunchResult is the launch gate's answer to an explicit launch request.
// It is closed: Success, AppNotInstalled, NotAllowed, OutsideSchedule and
// TimeLimitReached.
type LaunchResult interface {
	Kind() string
	fmt.Stringer
	launchResult()
}

// Success means the app's entry point was started (or would be, for a dry run).
type Success struct {
	Package   string
	Component string
}

// AppNotInstalled means the registry has no record or no entry point resolved.
type AppNotInstalled struct {
	Package string
}

// NotAllowed means the app is disallowed, outside its allowed days, or
// denied by the launch policy.
type NotAllowed struct {
	Package string
	Reason  string
}

// OutsideSchedule means the current time falls outside the allowed window.
type OutsideSchedule struct {
	Package string
	Start   string
	End     string
}

// TimeLimitReached means today's usage has reached the daily limit.
type TimeLimitReached struct {
	Package     string
	DisplayName string
}

func (Success) Kind() string          { return "success" }
func (AppNotInstalled) Kind() string  { return "app_not_installed" }
func (NotAllowed) Kind() string       { return "not_allowed" }
func (OutsideSchedule) Kind() string  { return "outside_schedule" }
func (TimeLimitReached) Kind() string { return "time_limit_reached" }

func (r Success) String() string { return fmt.Sprintf("launched %s (%s)", r.Package, r.Component) }
func (r AppNotInstalled) String() string {
	return fmt.Sprintf("%s is not installed", r.Package)
}
func (r NotAllowed) String() string {
	return fmt.Sprintf("%s is not allowed: %s", r.Package, r.Reason)
}
func (r OutsideSchedule) String() string {
	return fmt.Sprintf("%s is only allowed between %s and %s", r.Package, r.Start, r.End)
}
func (r TimeLimitReached) String() string {
	return fmt.Sprintf("time's up for %s today", r.DisplayName)
}

func (Success) launchResult()          {}
func (AppNotInstalled) launchResult()  {}
func (NotAllowed) launchResult()       {}
func (OutsideSchedule) launchResult()  {}
func (TimeLimitReached) launchResult() {}

// Reasons carried by NotAllowed.
const (
	ReasonNotAllowlisted = "not on the allowlist"
	ReasonDayNotAllowed  = "not allowed today"
	ReasonPolicyError    = "launch policy unavailable"
)

// Unlimited stands in for "no daily limit" so comparisons stay numeric.
const Unlimited = int(^uint(0) >> 1)

// systemPackages are never monitored.
var systemPackages = map[string]struct{}{
	"com.android.systemui":          {},
	"com.android.launcher":          {},
	"com.android.settings":          {},
	"com.google.android.tvlauncher": {},
}

// IsSystemPackage reports whether pkg is one of the reserved system packages.
func IsSystemPackage(pkg string) bool {
	_, ok := systemPackages[pkg]
	return ok
}

// UsageIncrement converts a poll interval to whole minutes, at least one.
func UsageIncrement(pollInterval time.Duration) int {
	minutes := int(pollInterval / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}
