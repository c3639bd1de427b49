package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/rs/zerolog"
)

// Ledger records per-package minutes for the current device-local day.
type Ledger struct {
	store  storage.UsageStore
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	watchers map[chan []storage.DailyUsage]struct{}
}

// NewLedger creates a ledger over the given usage store.
func NewLedger(store storage.UsageStore, clk clock.Clock, logger zerolog.Logger) *Ledger {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Ledger{
		store:    store,
		clock:    clk,
		logger:   logger.With().Str("component", "usage-ledger").Logger(),
		watchers: make(map[chan []storage.DailyUsage]struct{}),
	}
}

// Today returns the ledger's current date key.
func (l *Ledger) Today() string {
	return clock.Today(l.clock)
}

// TodayUsage returns today's minutes for packageName, zero if nothing is recorded.
func (l *Ledger) TodayUsage(ctx context.Context, packageName string) (int, error) {
	return l.UsageOn(ctx, l.Today(), packageName)
}

// UsageOn returns the minutes recorded for packageName on date, zero if
// nothing is recorded.
func (l *Ledger) UsageOn(ctx context.Context, date, packageName string) (int, error) {
	entry, err := l.store.GetDailyUsage(ctx, date, packageName)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage for %s on %s: %w", packageName, date, err)
	}
	return entry.Minutes, nil
}

// RecordUsage atomically adds minutes to today's entry and returns the stored total.
func (l *Ledger) RecordUsage(ctx context.Context, packageName string, minutes int) (int, error) {
	return l.RecordUsageOn(ctx, l.Today(), packageName, minutes)
}

// RecordUsageOn atomically adds minutes to the entry for date and returns
// the stored total.
func (l *Ledger) RecordUsageOn(ctx context.Context, date, packageName string, minutes int) (int, error) {
	total, err := l.store.IncrementDailyUsage(ctx, date, packageName, minutes)
	if err != nil {
		return 0, fmt.Errorf("record usage for %s: %w", packageName, err)
	}

	metrics.UsageMinutesRecorded.WithLabelValues(packageName).Add(float64(minutes))
	l.logger.Debug().
		Str("package", packageName).
		Str("date", date).
		Int("minutes", minutes).
		Int("total", total).
		Msg("Recorded usage")

	l.publish(ctx)
	return total, nil
}

// TodayUsageForAll returns every entry recorded today.
func (l *Ledger) TodayUsageForAll(ctx context.Context) ([]storage.DailyUsage, error) {
	return l.UsageForAllOn(ctx, l.Today())
}

// UsageForAllOn returns every entry recorded on date.
func (l *Ledger) UsageForAllOn(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	entries, err := l.store.ListDailyUsage(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list usage for %s: %w", date, err)
	}
	return entries, nil
}

// Prune deletes entries older than retentionDays days before today.
func (l *Ledger) Prune(ctx context.Context, retentionDays int) (int, error) {
	cutoff := l.clock.Now().AddDate(0, 0, -retentionDays).Format(clock.DateLayout)
	deleted, err := l.store.DeleteDailyUsageBefore(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("prune usage before %s: %w", cutoff, err)
	}
	return deleted, nil
}

// Watch streams today's usage snapshot: once on subscribe and again after
// every write. Slow readers only ever see the latest snapshot. The channel
// is closed when ctx is done.
func (l *Ledger) Watch(ctx context.Context) <-chan []storage.DailyUsage {
	ch := make(chan []storage.DailyUsage, 1)

	l.mu.Lock()
	l.watchers[ch] = struct{}{}
	l.mu.Unlock()

	if snapshot, err := l.TodayUsageForAll(ctx); err == nil {
		l.deliver(ch, snapshot)
	}

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.watchers, ch)
		close(ch)
		l.mu.Unlock()
	}()

	return ch
}

func (l *Ledger) publish(ctx context.Context) {
	l.mu.Lock()
	n := len(l.watchers)
	l.mu.Unlock()
	if n == 0 {
		return
	}

	snapshot, err := l.TodayUsageForAll(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to build usage snapshot for watchers")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.watchers {
		l.deliverLocked(ch, snapshot)
	}
}

func (l *Ledger) deliver(ch chan []storage.DailyUsage, snapshot []storage.DailyUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.watchers[ch]; !ok {
		return
	}
	l.deliverLocked(ch, snapshot)
}

// deliverLocked replaces any unread snapshot with the new one. Caller holds l.mu.
func (l *Ledger) deliverLocked(ch chan []storage.DailyUsage, snapshot []storage.DailyUsage) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
