// Package detect works out which application is in the foreground by trying
// a fixed list of strategies in order until one produces an answer.
package detect

import (
	"context"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/rs/zerolog"
)

// Method names, in the order they are tried.
const (
	MethodEventLog    = "event_log"
	MethodRunningTask = "running_task"
	MethodUsageStats  = "usage_stats"
)

// Defaults for Config.
const (
	DefaultEventWindow      = 10 * time.Minute
	DefaultUsageStatsWindow = time.Minute
	DefaultAttemptTimeout   = 3 * time.Second
)

// EventType is an activity lifecycle transition from the system event log.
type EventType int

const (
	EventResumed EventType = iota + 1
	EventPaused
)

// ActivityEvent is one entry of the system activity event log.
type ActivityEvent struct {
	Time    time.Time
	Type    EventType
	Package string
}

// UsageStat is a per-package aggregate from the usage statistics service.
type UsageStat struct {
	Package        string
	ForegroundTime time.Duration
	LastUsed       time.Time
}

// EventSource reads the activity event log.
type EventSource interface {
	ActivityEvents(ctx context.Context, since, until time.Time) ([]ActivityEvent, error)
}

// TaskSource reports the package of the top-most running task.
type TaskSource interface {
	TopTaskPackage(ctx context.Context) (string, error)
}

// UsageStatsSource reads aggregate usage statistics.
type UsageStatsSource interface {
	UsageStats(ctx context.Context, since, until time.Time) ([]UsageStat, error)
}

// Source is everything the detector can consult.
type Source interface {
	EventSource
	TaskSource
	UsageStatsSource
}

// Detection is a detector answer.
type Detection struct {
	Package string
	Method  string
}

// Strategy is one way of finding the foreground package. It reports
// ok=false when it has no answer; errors are treated the same way.
type Strategy struct {
	Name string
	Find func(ctx context.Context, now time.Time) (pkg string, ok bool, err error)
}

// Config tunes the detector.
type Config struct {
	EventWindow      time.Duration
	UsageStatsWindow time.Duration
	AttemptTimeout   time.Duration
}

// Detector runs strategies in order.
type Detector struct {
	strategies []Strategy
	timeout    time.Duration
	clock      clock.Clock
	logger     zerolog.Logger
}

// New creates a detector over src with the standard strategy order:
// event log, then running task, then usage stats.
func New(src Source, cfg Config, clk clock.Clock, logger zerolog.Logger) *Detector {
	if cfg.EventWindow <= 0 {
		cfg.EventWindow = DefaultEventWindow
	}
	if cfg.UsageStatsWindow <= 0 {
		cfg.UsageStatsWindow = DefaultUsageStatsWindow
	}
	return NewWithStrategies(cfg.AttemptTimeout, clk, logger,
		EventLogStrategy(src, cfg.EventWindow),
		RunningTaskStrategy(src),
		UsageStatsStrategy(src, cfg.UsageStatsWindow),
	)
}

// NewWithStrategies creates a detector with an explicit strategy list.
func NewWithStrategies(timeout time.Duration, clk clock.Clock, logger zerolog.Logger, strategies ...Strategy) *Detector {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Detector{
		strategies: strategies,
		timeout:    timeout,
		clock:      clk,
		logger:     logger.With().Str("component", "detector").Logger(),
	}
}

// Detect returns the first non-empty answer. ok=false means no strategy had
// one, which callers treat as "no decision this cycle".
func (d *Detector) Detect(ctx context.Context) (Detection, bool) {
	now := d.clock.Now()
	for _, s := range d.strategies {
		if ctx.Err() != nil {
			return Detection{}, false
		}
		pkg, ok := d.attempt(ctx, s, now)
		if !ok {
			continue
		}
		metrics.DetectionsTotal.WithLabelValues(s.Name).Inc()
		d.logger.Debug().Str("package", pkg).Str("method", s.Name).Msg("Foreground detected")
		return Detection{Package: pkg, Method: s.Name}, true
	}
	metrics.DetectionsTotal.WithLabelValues("none").Inc()
	return Detection{}, false
}

// attempt runs one strategy under the per-attempt timeout. A strategy that
// ignores its context is abandoned when the timeout fires.
func (d *Detector) attempt(ctx context.Context, s Strategy, now time.Time) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type answer struct {
		pkg string
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		pkg, ok, err := s.Find(ctx, now)
		done <- answer{pkg, ok, err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			d.logger.Debug().Err(a.err).Str("method", s.Name).Msg("Detection method failed")
			return "", false
		}
		return a.pkg, a.ok && a.pkg != ""
	case <-ctx.Done():
		d.logger.Debug().Err(ctx.Err()).Str("method", s.Name).Msg("Detection method timed out")
		return "", false
	}
}
