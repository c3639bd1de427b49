package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextReset(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		resetTime string
		want      time.Time
	}{
		{
			name:      "later today",
			now:       time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC),
			resetTime: "23:30",
			want:      time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC),
		},
		{
			name:      "already passed",
			now:       time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			resetTime: "00:00",
			want:      time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "exactly at reset",
			now:       time.Date(2024, 6, 1, 4, 0, 0, 0, time.UTC),
			resetTime: "04:00",
			want:      time.Date(2024, 6, 2, 4, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _, _ := newTestLedger(t, tt.now)
			rs, err := NewResetScheduler(ledger, tt.resetTime, 90, nil, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rs.nextReset())
		})
	}
}

func TestNewResetSchedulerRejectsBadTime(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Now())
	_, err := NewResetScheduler(ledger, "25:99", 90, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestPerformResetRunsHookAndPrunes(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ledger, _, store := newTestLedger(t, now)
	ctx := context.Background()

	_, err := store.Usage().IncrementDailyUsage(ctx, "2024-05-01", "com.example.app", 30)
	require.NoError(t, err)
	_, err = store.Usage().IncrementDailyUsage(ctx, "2024-06-09", "com.example.app", 30)
	require.NoError(t, err)

	hookCalls := 0
	hook := func(context.Context) error {
		hookCalls++
		return errors.New("not device owner")
	}

	rs, err := NewResetScheduler(ledger, "00:00", 7, hook, zerolog.Nop())
	require.NoError(t, err)
	rs.PerformReset(ctx)

	assert.Equal(t, 1, hookCalls)

	_, err = store.Usage().GetDailyUsage(ctx, "2024-05-01", "com.example.app")
	assert.Error(t, err, "old entry should be pruned even when the hook fails")

	recent, err := store.Usage().GetDailyUsage(ctx, "2024-06-09", "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 30, recent.Minutes)
}

func TestRunStopsOnCancel(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Now())
	rs, err := NewResetScheduler(ledger, "00:00", 90, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rs.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
