// Package memory provides a process-local storage.Store, used for the
// "memory" storage type and as a fake in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/storage"
)

// Store implements storage.Store with mutex-guarded maps.
type Store struct {
	mu    sync.RWMutex
	apps  map[string]storage.App
	rules map[string]storage.TimeLimit
	usage map[string]map[string]int // date -> package -> minutes
}

// New returns an empty store.
func New() *Store {
	return &Store{
		apps:  make(map[string]storage.App),
		rules: make(map[string]storage.TimeLimit),
		usage: make(map[string]map[string]int),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Apps returns the allowlist registry.
func (s *Store) Apps() storage.AppStore { return (*appStore)(s) }

// Rules returns the time limit rule store.
func (s *Store) Rules() storage.RuleStore { return (*ruleStore)(s) }

// Usage returns the usage store.
func (s *Store) Usage() storage.UsageStore { return (*usageStore)(s) }

type appStore Store

func (s *appStore) Get(ctx context.Context, packageName string) (*storage.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[packageName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &app, nil
}

func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	apps := make([]storage.App, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PackageName < apps[j].PackageName })
	return apps, nil
}

func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if app.PackageName == "" {
		return fmt.Errorf("app package_name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.PackageName] = app
	return nil
}

func (s *appStore) Delete(ctx context.Context, packageName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[packageName]; !ok {
		return storage.ErrNotFound
	}
	delete(s.apps, packageName)
	return nil
}

type ruleStore Store

func (s *ruleStore) Get(ctx context.Context, packageName string) (*storage.TimeLimit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[packageName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRule(rule), nil
}

func (s *ruleStore) List(ctx context.Context) ([]storage.TimeLimit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]storage.TimeLimit, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, *cloneRule(rule))
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].PackageName < rules[j].PackageName })
	return rules, nil
}

func (s *ruleStore) Upsert(ctx context.Context, rule storage.TimeLimit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.PackageName] = *cloneRule(rule)
	return nil
}

func (s *ruleStore) Delete(ctx context.Context, packageName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[packageName]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rules, packageName)
	return nil
}

func cloneRule(rule storage.TimeLimit) *storage.TimeLimit {
	out := rule
	if rule.DailyLimitMinutes != nil {
		out.DailyLimitMinutes = storage.Minutes(*rule.DailyLimitMinutes)
	}
	if rule.AllowedDays != nil {
		out.AllowedDays = append([]time.Weekday(nil), rule.AllowedDays...)
	}
	return &out
}

type usageStore Store

func (s *usageStore) GetDailyUsage(ctx context.Context, date, packageName string) (*storage.DailyUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	minutes, ok := s.usage[date][packageName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.DailyUsage{Date: date, PackageName: packageName, Minutes: minutes}, nil
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]storage.DailyUsage, 0, len(s.usage[date]))
	for pkg, minutes := range s.usage[date] {
		entries = append(entries, storage.DailyUsage{Date: date, PackageName: pkg, Minutes: minutes})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PackageName < entries[j].PackageName })
	return entries, nil
}

func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, packageName string, minutes int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if minutes < 0 {
		return 0, fmt.Errorf("usage increment must be non-negative, got %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.usage[date]
	if !ok {
		day = make(map[string]int)
		s.usage[date] = day
	}
	day[packageName] += minutes
	return day[packageName], nil
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff, err := time.Parse(clock.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for date, day := range s.usage {
		d, err := time.Parse(clock.DateLayout, date)
		if err != nil || !d.Before(cutoff) {
			continue
		}
		deleted += len(day)
		delete(s.usage, date)
	}
	return deleted, nil
}
