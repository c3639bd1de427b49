package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, now time.Time) (*Ledger, *clock.TestClock, *memory.Store) {
	t.Helper()
	store := memory.New()
	clk := &clock.TestClock{CurrentTime: now}
	return NewLedger(store.Usage(), clk, zerolog.Nop()), clk, store
}

func TestTodayUsageDefaultsToZero(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local))

	minutes, err := ledger.TodayUsage(context.Background(), "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 0, minutes)
}

func TestRecordUsageAccumulatesWithinDay(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local))
	ctx := context.Background()

	total, err := ledger.RecordUsage(ctx, "com.example.app", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = ledger.RecordUsage(ctx, "com.example.app", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	minutes, err := ledger.TodayUsage(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 3, minutes)
}

func TestUsageRollsOverAtMidnight(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, time.Date(2024, 6, 1, 23, 59, 0, 0, time.Local))
	ctx := context.Background()

	_, err := ledger.RecordUsage(ctx, "com.example.app", 60)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)

	minutes, err := ledger.TodayUsage(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 0, minutes, "usage must be keyed by device-local date")

	all, err := ledger.TodayUsageForAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

type failingUsageStore struct {
	storage.UsageStore
}

func (failingUsageStore) GetDailyUsage(context.Context, string, string) (*storage.DailyUsage, error) {
	return nil, errors.New("disk on fire")
}

func TestTodayUsagePropagatesStoreErrors(t *testing.T) {
	ledger := NewLedger(failingUsageStore{}, &clock.TestClock{CurrentTime: time.Now()}, zerolog.Nop())

	_, err := ledger.TodayUsage(context.Background(), "com.example.app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestWatchStreamsSnapshots(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ledger.RecordUsage(ctx, "com.a", 5)
	require.NoError(t, err)

	ch := ledger.Watch(ctx)

	select {
	case snapshot := <-ch:
		require.Len(t, snapshot, 1)
		assert.Equal(t, 5, snapshot[0].Minutes)
	case <-time.After(time.Second):
		t.Fatal("expected initial snapshot")
	}

	_, err = ledger.RecordUsage(ctx, "com.b", 2)
	require.NoError(t, err)

	select {
	case snapshot := <-ch:
		assert.Len(t, snapshot, 2)
	case <-time.After(time.Second):
		t.Fatal("expected snapshot after write")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRecordUsageOnExplicitDate(t *testing.T) {
	ledger, clk, _ := newTestLedger(t, time.Date(2024, 6, 1, 23, 59, 0, 0, time.Local))
	ctx := context.Background()

	date := ledger.Today()
	clk.Advance(2 * time.Minute)

	total, err := ledger.RecordUsageOn(ctx, date, "com.example.app", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	minutes, err := ledger.UsageOn(ctx, "2024-06-01", "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 3, minutes)

	today, err := ledger.TodayUsage(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 0, today)
}
