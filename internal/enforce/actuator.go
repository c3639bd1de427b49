// Package enforce carries out monitor decisions on the device.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/events"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/rs/zerolog"
)

// PolicyLayer is the set of privileged device controls. Each call other than
// IsDeviceOwner requires the agent to hold the device owner role.
type PolicyLayer interface {
	IsDeviceOwner(ctx context.Context) (bool, error)
	SetPackagesSuspended(ctx context.Context, packages []string, suspended bool) error
	SetLockTaskPackages(ctx context.Context, packages []string) error
}

// Navigator brings an activity to the foreground.
type Navigator interface {
	BringToFront(ctx context.Context, component string) error
}

// Supervisor identifies the shield application.
type Supervisor struct {
	Package   string
	Component string
}

// Actuator applies monitor actions.
type Actuator struct {
	policy     PolicyLayer
	nav        Navigator
	apps       storage.AppStore
	sink       events.Sink
	supervisor Supervisor
	clock      clock.Clock
	logger     zerolog.Logger
}

// New creates an actuator. sink may be nil.
func New(pl PolicyLayer, nav Navigator, apps storage.AppStore, sink events.Sink, supervisor Supervisor, clk clock.Clock, logger zerolog.Logger) *Actuator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Actuator{
		policy:     pl,
		nav:        nav,
		apps:       apps,
		sink:       sink,
		supervisor: supervisor,
		clock:      clk,
		logger:     logger.With().Str("component", "actuator").Logger(),
	}
}

// Apply performs the side effects of action. Privileged failures are only
// logged; the returned error covers the foreground switch and event delivery.
func (a *Actuator) Apply(ctx context.Context, action policy.MonitorAction) error {
	switch act := action.(type) {
	case policy.Ignore, policy.RecordUsage:
		return nil
	case policy.BlockNotAllowed:
		metrics.EnforcementsTotal.WithLabelValues(act.Kind(), act.Package).Inc()
		a.logger.Info().Str("package", act.Package).Msg("Blocking app that is not allowed")
		return a.BringSupervisorForward(ctx)
	case policy.EnforceTimeLimit:
		metrics.EnforcementsTotal.WithLabelValues(act.Kind(), act.Package).Inc()
		a.logger.Info().
			Str("package", act.Package).
			Int("minutes_used", act.MinutesUsed).
			Int("daily_limit", act.DailyLimit).
			Msg("Daily time limit reached")

		a.Suspend(ctx, act.Package)
		var errs []error
		if err := a.BringSupervisorForward(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.emitTimeUp(ctx, act.Package, act.DisplayName); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown monitor action %T", action)
	}
}

// BringSupervisorForward shows the shield app. Repeated calls reuse its task.
func (a *Actuator) BringSupervisorForward(ctx context.Context) error {
	if err := a.nav.BringToFront(ctx, a.supervisor.Component); err != nil {
		return fmt.Errorf("failed to show supervisor: %w", err)
	}
	return nil
}

func (a *Actuator) emitTimeUp(ctx context.Context, pkg, displayName string) error {
	if a.sink == nil {
		return nil
	}
	if err := a.sink.Emit(ctx, events.TimeUp(pkg, displayName, a.clock.Now())); err != nil {
		return fmt.Errorf("failed to emit time up: %w", err)
	}
	return nil
}

// Suspend stops pkg from being launched.
func (a *Actuator) Suspend(ctx context.Context, pkg string) {
	a.privileged(ctx, "suspend", func(ctx context.Context) error {
		return a.policy.SetPackagesSuspended(ctx, []string{pkg}, true)
	})
}

// Unsuspend lets pkg be launched again.
func (a *Actuator) Unsuspend(ctx context.Context, pkg string) {
	a.privileged(ctx, "unsuspend", func(ctx context.Context) error {
		return a.policy.SetPackagesSuspended(ctx, []string{pkg}, false)
	})
}

// UnsuspendAll unsuspends every allowed app.
func (a *Actuator) UnsuspendAll(ctx context.Context) {
	a.privileged(ctx, "unsuspend_all", func(ctx context.Context) error {
		pkgs, err := a.allowedPackages(ctx)
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			return nil
		}
		return a.policy.SetPackagesSuspended(ctx, pkgs, false)
	})
}

// AllowLockTaskPackages sets the kiosk allowlist. The supervisor is always
// included and duplicates are dropped.
func (a *Actuator) AllowLockTaskPackages(ctx context.Context, packages []string) {
	a.privileged(ctx, "lock_task", func(ctx context.Context) error {
		return a.policy.SetLockTaskPackages(ctx, lockTaskList(a.supervisor.Package, packages))
	})
}

// SyncLockTaskAllowlist pushes all allowed apps to the kiosk allowlist.
func (a *Actuator) SyncLockTaskAllowlist(ctx context.Context) {
	pkgs, err := a.allowedPackages(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list allowed apps for lock task")
		return
	}
	a.AllowLockTaskPackages(ctx, pkgs)
}

func (a *Actuator) allowedPackages(ctx context.Context) ([]string, error) {
	apps, err := a.apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	var pkgs []string
	for _, app := range apps {
		if app.Allowed {
			pkgs = append(pkgs, app.PackageName)
		}
	}
	return pkgs, nil
}

// privileged runs fn only when the agent is device owner. It never fails;
// outcomes are logged and counted.
func (a *Actuator) privileged(ctx context.Context, op string, fn func(context.Context) error) {
	log := a.logger.With().Str("op", op).Logger()

	owner, err := a.policy.IsDeviceOwner(ctx)
	if err != nil {
		metrics.PrivilegedOpsTotal.WithLabelValues(op, "skipped").Inc()
		log.Warn().Err(err).Msg("Owner check failed, skipping privileged operation")
		return
	}
	if !owner {
		metrics.PrivilegedOpsTotal.WithLabelValues(op, "skipped").Inc()
		log.Debug().Msg("Not device owner, skipping privileged operation")
		return
	}
	if err := fn(ctx); err != nil {
		metrics.PrivilegedOpsTotal.WithLabelValues(op, "error").Inc()
		log.Error().Err(err).Msg("Privileged operation failed")
		return
	}
	metrics.PrivilegedOpsTotal.WithLabelValues(op, "ok").Inc()
}

func lockTaskList(own string, packages []string) []string {
	seen := map[string]bool{own: true}
	out := []string{own}
	for _, p := range packages {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out[1:])
	return out
}
