package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date, packageName string) (*storage.DailyUsage, error) {
	return getBucketValue[storage.DailyUsage](ctx, s.db, bucketDailyUsage, dailyUsageKey(date, packageName))
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	prefix := []byte(date + "/")
	entries := make([]storage.DailyUsage, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			entries = append(entries, usage)
		}
		return nil
	})
	return entries, err
}

// IncrementDailyUsage performs the read-modify-write inside a single bolt
// write transaction, which bolt serialises.
func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, packageName string, minutes int) (int, error) {
	if minutes < 0 {
		return 0, fmt.Errorf("usage increment must be non-negative, got %d", minutes)
	}
	key := dailyUsageKey(date, packageName)
	var total int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return fmt.Errorf("daily usage bucket missing")
		}
		usage := storage.DailyUsage{Date: date, PackageName: packageName}
		if existing := b.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &usage); err != nil {
				return err
			}
		}
		usage.Minutes += minutes
		data, err := marshal(usage)
		if err != nil {
			return err
		}
		total = usage.Minutes
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(clock.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			dateValue, err := time.Parse(clock.DateLayout, usage.Date)
			if err == nil && dateValue.Before(cutoff) {
				key := append([]byte(nil), k...)
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
				// Delete leaves the cursor between items; re-seek instead of Next.
				k, v = c.Seek(key)
				continue
			}
			k, v = c.Next()
		}
		return nil
	})
	return deleted, err
}

func dailyUsageKey(date, packageName string) string {
	return fmt.Sprintf("%s/%s", date, packageName)
}
