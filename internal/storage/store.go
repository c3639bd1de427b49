package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Apps() AppStore
	Rules() RuleStore
	Usage() UsageStore
}

// AppStore is the allowlist registry: package -> allow flag and display metadata.
type AppStore interface {
	Get(ctx context.Context, packageName string) (*App, error)
	List(ctx context.Context) ([]App, error)
	Upsert(ctx context.Context, app App) error
	Delete(ctx context.Context, packageName string) error
}

// RuleStore manages per-package time limit rules.
type RuleStore interface {
	Get(ctx context.Context, packageName string) (*TimeLimit, error)
	List(ctx context.Context) ([]TimeLimit, error)
	Upsert(ctx context.Context, rule TimeLimit) error
	Delete(ctx context.Context, packageName string) error
}

// UsageStore manages per-day usage totals.
type UsageStore interface {
	GetDailyUsage(ctx context.Context, date, packageName string) (*DailyUsage, error)
	ListDailyUsage(ctx context.Context, date string) ([]DailyUsage, error)
	// IncrementDailyUsage atomically adds minutes to the entry, creating it
	// if needed, and returns the stored total.
	IncrementDailyUsage(ctx context.Context, date, packageName string, minutes int) (int, error)
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}
