package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/rs/zerolog"
)

// EntryPoint selects which launcher category to resolve.
type EntryPoint int

const (
	EntryLeanback EntryPoint = iota // large-screen launcher entry
	EntryStandard
)

func (e EntryPoint) String() string {
	if e == EntryLeanback {
		return "leanback"
	}
	return "standard"
}

// ErrNoEntryPoint is returned by a Launcher when the package has no entry of
// the requested kind.
var ErrNoEntryPoint = errors.New("no launchable entry point")

// Launcher resolves and starts application entry points.
type Launcher interface {
	ResolveEntryPoint(ctx context.Context, packageName string, entry EntryPoint) (string, error)
	StartComponent(ctx context.Context, component string) error
}

// LaunchPolicy is an optional extra check run after the built-in rules pass.
// It returns the reasons a launch is denied; none means allowed.
type LaunchPolicy interface {
	EvaluateLaunch(ctx context.Context, input map[string]any) ([]string, error)
}

// Gate decides explicit launch requests. It never writes the usage ledger;
// usage accrues only from the poll loop.
type Gate struct {
	apps     storage.AppStore
	rules    storage.RuleStore
	usage    UsageReader
	launcher Launcher
	policy   LaunchPolicy
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewGate creates a launch gate.
func NewGate(apps storage.AppStore, rules storage.RuleStore, usage UsageReader, launcher Launcher, clk clock.Clock, logger zerolog.Logger) *Gate {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Gate{
		apps:     apps,
		rules:    rules,
		usage:    usage,
		launcher: launcher,
		clock:    clk,
		logger:   logger.With().Str("component", "launch-gate").Logger(),
	}
}

// SetPolicy installs an optional launch policy.
func (g *Gate) SetPolicy(p LaunchPolicy) {
	g.policy = p
}

// RequestLaunch evaluates the request and, when permitted, starts the app.
func (g *Gate) RequestLaunch(ctx context.Context, packageName string) (LaunchResult, error) {
	result, err := g.decide(ctx, packageName, g.clock.Now(), true)
	if err != nil {
		metrics.LaunchRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LaunchRequestsTotal.WithLabelValues(result.Kind()).Inc()
	g.logger.Info().
		Str("package", packageName).
		Str("result", result.Kind()).
		Msg("Launch request evaluated")
	return result, nil
}

// Check runs the same evaluation as RequestLaunch without starting anything.
func (g *Gate) Check(ctx context.Context, packageName string) (LaunchResult, error) {
	return g.decide(ctx, packageName, g.clock.Now(), false)
}

// CheckAt is Check as if the request were made at the given time, against
// the usage recorded on that day.
func (g *Gate) CheckAt(ctx context.Context, packageName string, at time.Time) (LaunchResult, error) {
	return g.decide(ctx, packageName, at, false)
}

func (g *Gate) decide(ctx context.Context, pkg string, now time.Time, start bool) (LaunchResult, error) {
	app, err := lookupApp(ctx, g.apps, pkg)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return AppNotInstalled{Package: pkg}, nil
	}
	if !app.Allowed {
		return NotAllowed{Package: pkg, Reason: ReasonNotAllowlisted}, nil
	}

	rule, err := lookupRule(ctx, g.rules, pkg)
	if err != nil {
		return nil, err
	}

	if !DayAllowed(rule, now.Weekday()) {
		return NotAllowed{Package: pkg, Reason: ReasonDayNotAllowed}, nil
	}

	within, err := WithinWindow(rule, now)
	if err != nil {
		return nil, err
	}
	if !within {
		startTime, endTime := Window(rule)
		return OutsideSchedule{Package: pkg, Start: startTime, End: endTime}, nil
	}

	used, err := g.usage.UsageOn(ctx, now.Format(clock.DateLayout), pkg)
	if err != nil {
		return nil, err
	}
	if used >= DailyLimit(rule) {
		return TimeLimitReached{Package: pkg, DisplayName: displayName(app)}, nil
	}

	if g.policy != nil {
		reasons, err := g.policy.EvaluateLaunch(ctx, buildLaunchInput(app, rule, used, now))
		if err != nil {
			g.logger.Error().Err(err).Str("package", pkg).Msg("Launch policy evaluation failed, denying launch")
			return NotAllowed{Package: pkg, Reason: ReasonPolicyError}, nil
		}
		if len(reasons) > 0 {
			return NotAllowed{Package: pkg, Reason: strings.Join(reasons, "; ")}, nil
		}
	}

	component, ok := g.resolve(ctx, pkg)
	if !ok {
		return AppNotInstalled{Package: pkg}, nil
	}
	if start {
		if err := g.launcher.StartComponent(ctx, component); err != nil {
			return nil, fmt.Errorf("start %s: %w", component, err)
		}
	}
	return Success{Package: pkg, Component: component}, nil
}

// resolve prefers the leanback entry point and falls back to the standard one.
func (g *Gate) resolve(ctx context.Context, pkg string) (string, bool) {
	for _, entry := range []EntryPoint{EntryLeanback, EntryStandard} {
		component, err := g.launcher.ResolveEntryPoint(ctx, pkg, entry)
		if err == nil && component != "" {
			return component, true
		}
		if err != nil && !errors.Is(err, ErrNoEntryPoint) {
			g.logger.Warn().Err(err).Str("package", pkg).Stringer("entry", entry).Msg("Entry point resolution failed")
		}
	}
	return "", false
}
