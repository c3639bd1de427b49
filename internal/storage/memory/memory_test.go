package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goodtune/tvwarden/internal/storage"
)

func TestRuleIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	limit := storage.Minutes(30)
	if err := store.Rules().Upsert(ctx, storage.TimeLimit{PackageName: "com.example.app", DailyLimitMinutes: limit}); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
	*limit = 999

	got, err := store.Rules().Get(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if *got.DailyLimitMinutes != 30 {
		t.Fatalf("stored rule was mutated through caller pointer: %d", *got.DailyLimitMinutes)
	}
}

func TestUsageIncrementAndPrune(t *testing.T) {
	store := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Usage().IncrementDailyUsage(ctx, "2024-05-01", "com.example.app", 1); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	usage, err := store.Usage().GetDailyUsage(ctx, "2024-05-01", "com.example.app")
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if usage.Minutes != 50 {
		t.Fatalf("expected 50 minutes, got %d", usage.Minutes)
	}

	deleted, err := store.Usage().DeleteDailyUsageBefore(ctx, "2024-05-02")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := store.Usage().GetDailyUsage(ctx, "2024-05-01", "com.example.app"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsageRejectsNegativeIncrement(t *testing.T) {
	store := New()
	if _, err := store.Usage().IncrementDailyUsage(context.Background(), "2024-05-01", "com.example.app", -1); err == nil {
		t.Fatal("expected error")
	}
}
