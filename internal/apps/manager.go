// Package apps manages the allowlist registry and the time limit rules
// attached to its entries.
package apps

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/tvwarden/internal/catalog"
	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultDailyLimitMinutes is the rule created when an app is first allowed.
const DefaultDailyLimitMinutes = 60

// Status is an app's time limit position for today.
type Status struct {
	App        storage.App        `json:"app"`
	Rule       *storage.TimeLimit `json:"rule,omitempty"`
	DailyLimit *int               `json:"daily_limit,omitempty"`
	UsedToday  int                `json:"used_today"`
	Remaining  *int               `json:"remaining,omitempty"` // nil when unlimited
	Exceeded   bool               `json:"exceeded"`
}

// Manager edits the registry and rules.
type Manager struct {
	apps    storage.AppStore
	rules   storage.RuleStore
	usage   policy.UsageReader
	catalog *catalog.Catalog
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewManager creates a Manager. cat may be nil, in which case the built-in
// catalog is used.
func NewManager(apps storage.AppStore, rules storage.RuleStore, usage policy.UsageReader, cat *catalog.Catalog, clk clock.Clock, logger zerolog.Logger) *Manager {
	if cat == nil {
		cat = catalog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		apps:    apps,
		rules:   rules,
		usage:   usage,
		catalog: cat,
		clock:   clk,
		logger:  logger.With().Str("component", "apps").Logger(),
	}
}

// Register records pkg as installed. Display name and category default to the
// catalog entry; an existing record keeps its allowed flag.
func (m *Manager) Register(ctx context.Context, pkg, displayName string) (*storage.App, error) {
	existing, err := m.get(ctx, pkg)
	if err != nil {
		return nil, err
	}

	app := storage.App{PackageName: pkg, Installed: true}
	if existing != nil {
		app = *existing
		app.Installed = true
	}
	if known, ok := m.catalog.FindByPackage(pkg); ok {
		if app.DisplayName == "" {
			app.DisplayName = known.DisplayName
		}
		if app.Category == "" {
			app.Category = known.Category
		}
	}
	if displayName != "" {
		app.DisplayName = displayName
	}
	app.UpdatedAt = m.clock.Now()

	if err := m.apps.Upsert(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", pkg, err)
	}
	return &app, nil
}

// SetAllowed flips the allowed flag, registering the app if needed. Allowing
// an app with no rule creates the default daily limit; existing rules are
// never touched.
func (m *Manager) SetAllowed(ctx context.Context, pkg string, allowed bool) (*storage.App, error) {
	app, err := m.get(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if app == nil {
		if app, err = m.Register(ctx, pkg, ""); err != nil {
			return nil, err
		}
	}

	app.Allowed = allowed
	app.UpdatedAt = m.clock.Now()
	if err := m.apps.Upsert(ctx, *app); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", pkg, err)
	}
	m.logger.Info().Str("package", pkg).Bool("allowed", allowed).Msg("App allowlist updated")

	if !allowed {
		return app, nil
	}
	_, err = m.rules.Get(ctx, pkg)
	switch {
	case err == nil:
		return app, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to get rule for %s: %w", pkg, err)
	}

	rule := storage.TimeLimit{
		PackageName:       pkg,
		DailyLimitMinutes: storage.Minutes(DefaultDailyLimitMinutes),
		UpdatedAt:         m.clock.Now(),
	}
	if err := m.rules.Upsert(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create default rule for %s: %w", pkg, err)
	}
	m.logger.Info().Str("package", pkg).Int("daily_limit", DefaultDailyLimitMinutes).Msg("Default time limit created")
	return app, nil
}

// SetLimit validates and stores a rule.
func (m *Manager) SetLimit(ctx context.Context, rule storage.TimeLimit) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.UpdatedAt = m.clock.Now()
	if err := m.rules.Upsert(ctx, rule); err != nil {
		return fmt.Errorf("failed to set limit for %s: %w", rule.PackageName, err)
	}
	return nil
}

// ClearLimit removes the rule for pkg, leaving it unlimited.
func (m *Manager) ClearLimit(ctx context.Context, pkg string) error {
	if err := m.rules.Delete(ctx, pkg); err != nil {
		return fmt.Errorf("failed to clear limit for %s: %w", pkg, err)
	}
	return nil
}

// Status reports today's position against the daily limit.
func (m *Manager) Status(ctx context.Context, pkg string) (*Status, error) {
	app, err := m.get(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("app %s: %w", pkg, storage.ErrNotFound)
	}
	return m.status(ctx, *app)
}

// Statuses reports every registered app.
func (m *Manager) Statuses(ctx context.Context) ([]Status, error) {
	apps, err := m.apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	out := make([]Status, 0, len(apps))
	for _, app := range apps {
		st, err := m.status(ctx, app)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (m *Manager) status(ctx context.Context, app storage.App) (*Status, error) {
	used, err := m.usage.UsageOn(ctx, clock.Today(m.clock), app.PackageName)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage for %s: %w", app.PackageName, err)
	}
	rule, err := m.rules.Get(ctx, app.PackageName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to get rule for %s: %w", app.PackageName, err)
	}

	st := &Status{App: app, UsedToday: used}
	if err == nil {
		st.Rule = rule
	}
	if st.Rule != nil && st.Rule.DailyLimitMinutes != nil {
		limit := *st.Rule.DailyLimitMinutes
		st.DailyLimit = storage.Minutes(limit)
		st.Remaining = storage.Minutes(max(0, limit-used))
		st.Exceeded = used >= limit
	}
	return st, nil
}

func (m *Manager) get(ctx context.Context, pkg string) (*storage.App, error) {
	app, err := m.apps.Get(ctx, pkg)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app %s: %w", pkg, err)
	}
	return app, nil
}
