package control

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/usage"
	"github.com/rs/zerolog"
)

// Detector finds the foreground app.
type Detector interface {
	Detect(ctx context.Context) (detect.Detection, bool)
}

// AllowlistSyncer pushes the allowed apps to the kiosk allowlist.
type AllowlistSyncer interface {
	SyncLockTaskAllowlist(ctx context.Context)
}

// LocalConfig wires a Local service to the agent's components. Allowlist may
// be nil.
type LocalConfig struct {
	Store        storage.Store
	Ledger       *usage.Ledger
	Gate         *policy.Gate
	Apps         *apps.Manager
	Detector     Detector
	Allowlist    AllowlistSyncer
	OwnPackage   string
	PollInterval time.Duration
}

// Local answers requests against in-process components.
type Local struct {
	cfg     LocalConfig
	preview *policy.Engine
	logger  zerolog.Logger
}

var _ Service = (*Local)(nil)

// NewLocal creates a Local service.
func NewLocal(cfg LocalConfig, logger zerolog.Logger) *Local {
	return &Local{
		cfg:     cfg,
		preview: policy.NewEngine(cfg.Store.Apps(), cfg.Store.Rules(), previewLedger{cfg.Ledger}, logger),
		logger:  logger.With().Str("component", "control").Logger(),
	}
}

// RequestLaunch runs the launch gate and starts the app when it passes.
func (l *Local) RequestLaunch(ctx context.Context, pkg string) (policy.LaunchResult, error) {
	return l.cfg.Gate.RequestLaunch(ctx, pkg)
}

// CheckLaunch evaluates a launch at the given time without starting anything.
func (l *Local) CheckLaunch(ctx context.Context, pkg string, at time.Time) (policy.LaunchResult, error) {
	return l.cfg.Gate.CheckAt(ctx, pkg, at)
}

// PreviewMonitor detects the foreground app and evaluates it without
// recording usage or enforcing anything.
func (l *Local) PreviewMonitor(ctx context.Context) (*MonitorPreview, error) {
	det, ok := l.cfg.Detector.Detect(ctx)
	if !ok {
		return &MonitorPreview{}, nil
	}
	action, err := l.preview.Evaluate(ctx, det.Package, l.cfg.OwnPackage, l.cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", det.Package, err)
	}
	return &MonitorPreview{Detected: true, Detection: det, Action: action}, nil
}

func (l *Local) Apps(ctx context.Context) ([]apps.Status, error) {
	return l.cfg.Apps.Statuses(ctx)
}

func (l *Local) App(ctx context.Context, pkg string) (*apps.Status, error) {
	return l.cfg.Apps.Status(ctx, pkg)
}

// SetAllowed updates the allowlist and resyncs the kiosk allowlist.
func (l *Local) SetAllowed(ctx context.Context, pkg, displayName string, allowed bool) (*storage.App, error) {
	if allowed && displayName != "" {
		if _, err := l.cfg.Apps.Register(ctx, pkg, displayName); err != nil {
			return nil, err
		}
	}
	app, err := l.cfg.Apps.SetAllowed(ctx, pkg, allowed)
	if err != nil {
		return nil, err
	}
	if l.cfg.Allowlist != nil {
		l.cfg.Allowlist.SyncLockTaskAllowlist(ctx)
	}
	return app, nil
}

func (l *Local) SetLimit(ctx context.Context, rule storage.TimeLimit) error {
	return l.cfg.Apps.SetLimit(ctx, rule)
}

func (l *Local) ClearLimit(ctx context.Context, pkg string) error {
	return l.cfg.Apps.ClearLimit(ctx, pkg)
}

func (l *Local) TodayUsage(ctx context.Context) (*UsageReport, error) {
	date := l.cfg.Ledger.Today()
	entries, err := l.cfg.Ledger.UsageForAllOn(ctx, date)
	if err != nil {
		return nil, err
	}
	return &UsageReport{Date: date, Entries: entries}, nil
}

// previewLedger reports what a usage write would produce without writing.
type previewLedger struct {
	*usage.Ledger
}

func (l previewLedger) RecordUsageOn(ctx context.Context, date, pkg string, minutes int) (int, error) {
	used, err := l.UsageOn(ctx, date, pkg)
	if err != nil {
		return 0, err
	}
	return used + minutes, nil
}
