package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/rs/zerolog"
)

// UsageReader reads the usage recorded for a day (YYYY-MM-DD).
type UsageReader interface {
	UsageOn(ctx context.Context, date, packageName string) (int, error)
}

// UsageLedger reads and credits daily usage. Today is the ledger's current
// date key.
type UsageLedger interface {
	UsageReader
	Today() string
	RecordUsageOn(ctx context.Context, date, packageName string, minutes int) (int, error)
}

// Engine classifies the foreground app into a MonitorAction.
type Engine struct {
	apps   storage.AppStore
	rules  storage.RuleStore
	ledger UsageLedger
	logger zerolog.Logger
}

// NewEngine creates a decision engine.
func NewEngine(apps storage.AppStore, rules storage.RuleStore, ledger UsageLedger, logger zerolog.Logger) *Engine {
	return &Engine{
		apps:   apps,
		rules:  rules,
		ledger: ledger,
		logger: logger.With().Str("component", "policy").Logger(),
	}
}

// Evaluate decides what to do about foreground. Only the RecordUsage branch
// writes to the ledger. Store errors are returned and no action is taken.
func (e *Engine) Evaluate(ctx context.Context, foreground, own string, pollInterval time.Duration) (MonitorAction, error) {
	action, err := e.evaluate(ctx, foreground, own, pollInterval)
	if err != nil {
		return nil, err
	}
	metrics.MonitorActionsTotal.WithLabelValues(action.Kind()).Inc()
	return action, nil
}

func (e *Engine) evaluate(ctx context.Context, foreground, own string, pollInterval time.Duration) (MonitorAction, error) {
	if foreground == own || IsSystemPackage(foreground) {
		return Ignore{}, nil
	}

	app, err := lookupApp(ctx, e.apps, foreground)
	if err != nil {
		return nil, err
	}
	if app == nil || !app.Allowed {
		return BlockNotAllowed{Package: foreground}, nil
	}

	// Read and credit the same day even if midnight passes mid-cycle.
	date := e.ledger.Today()
	used, err := e.ledger.UsageOn(ctx, date, foreground)
	if err != nil {
		return nil, err
	}
	rule, err := lookupRule(ctx, e.rules, foreground)
	if err != nil {
		return nil, err
	}
	limit := DailyLimit(rule)
	name := displayName(app)

	// Equality counts as exceeded, so a zero limit blocks from the first minute.
	if used >= limit {
		return EnforceTimeLimit{
			Package:     foreground,
			DisplayName: name,
			MinutesUsed: used,
			DailyLimit:  limit,
		}, nil
	}

	increment := UsageIncrement(pollInterval)
	if _, err := e.ledger.RecordUsageOn(ctx, date, foreground, increment); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("package", foreground).
		Str("date", date).
		Int("used", used).
		Int("increment", increment).
		Msg("Usage recorded")

	return RecordUsage{
		Package:          foreground,
		DisplayName:      name,
		IncrementMinutes: increment,
		NewTotalMinutes:  used + increment,
	}, nil
}

func lookupApp(ctx context.Context, apps storage.AppStore, pkg string) (*storage.App, error) {
	app, err := apps.Get(ctx, pkg)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", pkg, err)
	}
	return app, nil
}

func lookupRule(ctx context.Context, rules storage.RuleStore, pkg string) (*storage.TimeLimit, error) {
	rule, err := rules.Get(ctx, pkg)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get time limit %s: %w", pkg, err)
	}
	return rule, nil
}

func displayName(app *storage.App) string {
	if app.DisplayName != "" {
		return app.DisplayName
	}
	return app.PackageName
}
