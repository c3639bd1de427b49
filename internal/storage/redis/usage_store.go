package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
	ttl    time.Duration
}

// GetDailyUsage retrieves daily usage for a specific date and package
func (s *usageStore) GetDailyUsage(ctx context.Context, date, packageName string) (*storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, dailyUsageKey(date, packageName)).Result()
	if err != nil {
		return nil, err
	}
	return parseDailyUsage(data)
}

// ListDailyUsage returns all daily usage entries for a specific date
func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	packages, err := s.client.SMembers(ctx, dailyUsageIndexKey(date)).Result()
	if err != nil {
		return nil, err
	}

	if len(packages) == 0 {
		return []storage.DailyUsage{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(packages))
	for i, pkg := range packages {
		cmds[i] = pipe.HGetAll(ctx, dailyUsageKey(date, pkg))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	usages := make([]storage.DailyUsage, 0, len(packages))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		usage, err := parseDailyUsage(data)
		if err == nil {
			usages = append(usages, *usage)
		}
	}

	return usages, nil
}

// IncrementDailyUsage atomically increments (or creates) daily usage
func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, packageName string, minutes int) (int, error) {
	if minutes < 0 {
		return 0, fmt.Errorf("usage increment must be non-negative, got %d", minutes)
	}

	script := redis.NewScript(incrementDailyUsageScript)
	keys := []string{dailyUsageKey(date, packageName), dailyUsageIndexKey(date), dailyUsageDatesKey()}
	args := []any{date, packageName, minutes, int64(s.ttl / time.Second)}

	total, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteDailyUsageBefore deletes daily usage entries dated before cutoffDate.
// Keys also carry a TTL, so this mostly clears what expiry has not yet reached.
func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(clock.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	dates, err := s.client.SMembers(ctx, dailyUsageDatesKey()).Result()
	if err != nil {
		return 0, err
	}

	script := redis.NewScript(deleteDailyUsageDateScript)
	prefix := fmt.Sprintf("%s:usage:daily:", keyPrefix)
	deleted := 0
	for _, date := range dates {
		day, err := time.Parse(clock.DateLayout, date)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		n, err := script.Run(ctx, s.client, []string{dailyUsageIndexKey(date), dailyUsageDatesKey()}, date, prefix).Int()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}
