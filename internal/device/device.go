package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/rs/zerolog"
)

// launchFlags is FLAG_ACTIVITY_NEW_TASK | FLAG_ACTIVITY_CLEAR_TOP |
// FLAG_ACTIVITY_SINGLE_TOP, which reuses an existing supervisor task.
const launchFlags = "0x34000000"

// newTaskFlag is FLAG_ACTIVITY_NEW_TASK.
const newTaskFlag = "0x10000000"

// lockTaskAction is the broadcast the supervisor app handles to update its
// lock-task allowlist; only the owner app itself can make that call.
const lockTaskAction = ".action.SET_LOCK_TASK_PACKAGES"

const (
	categoryLeanback = "android.intent.category.LEANBACK_LAUNCHER"
	categoryLauncher = "android.intent.category.LAUNCHER"
)

// Device implements the detector sources, the privileged policy layer and
// the launcher on top of a Shell.
type Device struct {
	shell      Shell
	supervisor string
	location   *time.Location
	logger     zerolog.Logger
}

var (
	_ detect.Source   = (*Device)(nil)
	_ policy.Launcher = (*Device)(nil)
)

// New creates a Device. supervisor is the package name of the shield app.
func New(shell Shell, supervisor string, logger zerolog.Logger) *Device {
	return &Device{
		shell:      shell,
		supervisor: supervisor,
		location:   time.Local,
		logger:     logger.With().Str("component", "device").Logger(),
	}
}

// SetLocation sets the zone dumpsys timestamps are interpreted in.
func (d *Device) SetLocation(loc *time.Location) {
	if loc != nil {
		d.location = loc
	}
}

// ActivityEvents reads resume and pause transitions from the usage event log.
func (d *Device) ActivityEvents(ctx context.Context, since, until time.Time) ([]detect.ActivityEvent, error) {
	out, err := d.shell.Run(ctx, "dumpsys", "usagestats")
	if err != nil {
		return nil, fmt.Errorf("failed to read usage events: %w", err)
	}
	return parseActivityEvents(out, since, until, d.location), nil
}

// TopTaskPackage returns the package of the resumed activity.
func (d *Device) TopTaskPackage(ctx context.Context) (string, error) {
	out, err := d.shell.Run(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return "", fmt.Errorf("failed to read activities: %w", err)
	}
	return parseResumedPackage(out), nil
}

// dailyBucket is the span of the daily usage stats interval.
const dailyBucket = 24 * time.Hour

// UsageStats returns per-package aggregates from the daily buckets that
// overlap [since, until]. A package that has stayed in the foreground since
// it resumed keeps its old last-used time, so stats are not filtered on it
// beyond the bucket's reach.
func (d *Device) UsageStats(ctx context.Context, since, until time.Time) ([]detect.UsageStat, error) {
	out, err := d.shell.Run(ctx, "dumpsys", "usagestats")
	if err != nil {
		return nil, fmt.Errorf("failed to read usage stats: %w", err)
	}
	all := parseUsageStats(out, d.location)
	earliest := since.Add(-dailyBucket)
	stats := all[:0]
	for _, s := range all {
		if s.LastUsed.Before(earliest) {
			continue
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// IsDeviceOwner reports whether the supervisor app is the device owner.
func (d *Device) IsDeviceOwner(ctx context.Context) (bool, error) {
	out, err := d.shell.Run(ctx, "dpm", "list-owners")
	if err != nil {
		return false, fmt.Errorf("failed to list owners: %w", err)
	}
	return parseDeviceOwner(out, d.supervisor), nil
}

// SetPackagesSuspended suspends or unsuspends each package in turn. All
// packages are attempted; failures are joined.
func (d *Device) SetPackagesSuspended(ctx context.Context, packages []string, suspended bool) error {
	verb := "unsuspend"
	if suspended {
		verb = "suspend"
	}
	var errs []error
	for _, pkg := range packages {
		out, err := d.shell.Run(ctx, "pm", verb, pkg)
		if err == nil && strings.Contains(out, "Error") {
			err = errors.New(strings.TrimSpace(out))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", verb, pkg, err))
		}
	}
	return errors.Join(errs...)
}

// SetLockTaskPackages replaces the lock-task allowlist by asking the
// supervisor app to apply it.
func (d *Device) SetLockTaskPackages(ctx context.Context, packages []string) error {
	_, err := d.shell.Run(ctx, "am", "broadcast",
		"-a", d.supervisor+lockTaskAction,
		"-p", d.supervisor,
		"--esa", "packages", strings.Join(packages, ","))
	if err != nil {
		return fmt.Errorf("failed to set lock task packages: %w", err)
	}
	return nil
}

// BringToFront starts component reusing its existing task, so repeated calls
// leave a single instance in front.
func (d *Device) BringToFront(ctx context.Context, component string) error {
	if _, err := d.shell.Run(ctx, "am", "start", "-n", component, "-f", launchFlags); err != nil {
		return fmt.Errorf("failed to bring %s forward: %w", component, err)
	}
	return nil
}

// ResolveEntryPoint returns the component handling the main intent in the
// given launcher category, or policy.ErrNoEntryPoint.
func (d *Device) ResolveEntryPoint(ctx context.Context, packageName string, entry policy.EntryPoint) (string, error) {
	category := categoryLauncher
	if entry == policy.EntryLeanback {
		category = categoryLeanback
	}
	out, err := d.shell.Run(ctx, "cmd", "package", "resolve-activity", "--brief",
		"-a", "android.intent.action.MAIN", "-c", category, packageName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s entry for %s: %w", entry, packageName, err)
	}
	component := parseResolvedComponent(out)
	if component == "" {
		return "", policy.ErrNoEntryPoint
	}
	return component, nil
}

// StartComponent launches component in a new task.
func (d *Device) StartComponent(ctx context.Context, component string) error {
	out, err := d.shell.Run(ctx, "am", "start", "-n", component, "-f", newTaskFlag)
	if err == nil && strings.Contains(out, "Error:") {
		err = errors.New(strings.TrimSpace(out))
	}
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", component, err)
	}
	d.logger.Debug().Str("component_name", component).Msg("Started activity")
	return nil
}
