package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events    []ActivityEvent
	eventsErr error
	top       string
	topErr    error
	stats     []UsageStat
	statsErr  error

	since, until time.Time
}

func (f *fakeSource) ActivityEvents(_ context.Context, since, until time.Time) ([]ActivityEvent, error) {
	f.since, f.until = since, until
	return f.events, f.eventsErr
}

func (f *fakeSource) TopTaskPackage(context.Context) (string, error) {
	return f.top, f.topErr
}

func (f *fakeSource) UsageStats(context.Context, time.Time, time.Time) ([]UsageStat, error) {
	return f.stats, f.statsErr
}

var now = time.Date(2024, 6, 5, 15, 0, 0, 0, time.Local)

func newDetector(src Source) *Detector {
	return New(src, Config{}, &clock.TestClock{CurrentTime: now}, zerolog.Nop())
}

func TestDetectEventLogWins(t *testing.T) {
	src := &fakeSource{
		events: []ActivityEvent{
			{Time: now.Add(-5 * time.Minute), Type: EventResumed, Package: "com.netflix.ninja"},
			{Time: now.Add(-4 * time.Minute), Type: EventPaused, Package: "com.netflix.ninja"},
			{Time: now.Add(-3 * time.Minute), Type: EventResumed, Package: "com.google.android.youtube.tv"},
		},
		top: "com.other",
	}

	got, ok := newDetector(src).Detect(context.Background())
	require.True(t, ok)
	assert.Equal(t, Detection{Package: "com.google.android.youtube.tv", Method: MethodEventLog}, got)
	assert.Equal(t, now.Add(-DefaultEventWindow), src.since)
	assert.Equal(t, now, src.until)
}

func TestDetectEventLogOrdersByTime(t *testing.T) {
	events := []ActivityEvent{
		{Time: now.Add(-1 * time.Minute), Type: EventResumed, Package: "b"},
		{Time: now.Add(-2 * time.Minute), Type: EventResumed, Package: "a"},
	}
	assert.Equal(t, "b", lastResumed(events))
}

func TestDetectPausedFallsThroughToRunningTask(t *testing.T) {
	src := &fakeSource{
		events: []ActivityEvent{
			{Time: now.Add(-2 * time.Minute), Type: EventResumed, Package: "a"},
			{Time: now.Add(-1 * time.Minute), Type: EventPaused, Package: "a"},
		},
		top: "com.disney.disneyplus",
	}

	got, ok := newDetector(src).Detect(context.Background())
	require.True(t, ok)
	assert.Equal(t, MethodRunningTask, got.Method)
	assert.Equal(t, "com.disney.disneyplus", got.Package)
}

func TestDetectErrorsFallThroughToUsageStats(t *testing.T) {
	src := &fakeSource{
		eventsErr: errors.New("permission denied"),
		topErr:    errors.New("no tasks"),
		stats: []UsageStat{
			{Package: "old", ForegroundTime: time.Minute, LastUsed: now.Add(-50 * time.Second)},
			{Package: "idle", ForegroundTime: 0, LastUsed: now},
			{Package: "recent", ForegroundTime: time.Second, LastUsed: now.Add(-5 * time.Second)},
		},
	}

	got, ok := newDetector(src).Detect(context.Background())
	require.True(t, ok)
	assert.Equal(t, Detection{Package: "recent", Method: MethodUsageStats}, got)
}

func TestDetectNoDecision(t *testing.T) {
	src := &fakeSource{topErr: errors.New("boom"), statsErr: errors.New("boom")}

	_, ok := newDetector(src).Detect(context.Background())
	assert.False(t, ok)
}

func TestDetectAttemptTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	slow := Strategy{Name: "slow", Find: func(context.Context, time.Time) (string, bool, error) {
		<-block
		return "never", true, nil
	}}
	fast := Strategy{Name: "fast", Find: func(context.Context, time.Time) (string, bool, error) {
		return "pkg", true, nil
	}}
	d := NewWithStrategies(20*time.Millisecond, &clock.TestClock{CurrentTime: now}, zerolog.Nop(), slow, fast)

	start := time.Now()
	got, ok := d.Detect(context.Background())
	require.True(t, ok)
	assert.Equal(t, "fast", got.Method)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := newDetector(&fakeSource{top: "pkg"}).Detect(ctx)
	assert.False(t, ok)
}
