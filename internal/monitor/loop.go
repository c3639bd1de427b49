// Package monitor runs the periodic detect, evaluate and enforce cycle.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/rs/zerolog"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 10 * time.Second

// State is the loop lifecycle. It only moves forward.
type State int

const (
	NotStarted State = iota
	Running
	Cancelled
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Detector finds the foreground package.
type Detector interface {
	Detect(ctx context.Context) (detect.Detection, bool)
}

// Evaluator decides what to do about the foreground package.
type Evaluator interface {
	Evaluate(ctx context.Context, foreground, own string, pollInterval time.Duration) (policy.MonitorAction, error)
}

// Actuator applies a decision.
type Actuator interface {
	Apply(ctx context.Context, action policy.MonitorAction) error
}

// Config configures a Loop.
type Config struct {
	OwnPackage string
	Interval   time.Duration
	// OnCycle, when set, runs after every cycle whatever its outcome.
	OnCycle func()
}

// Loop is the poll loop. One Loop runs at most once.
type Loop struct {
	cfg      Config
	detector Detector
	engine   Evaluator
	actuator Actuator
	logger   zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a loop in the NotStarted state.
func New(cfg Config, detector Detector, engine Evaluator, actuator Actuator, logger zerolog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		cfg:      cfg,
		detector: detector,
		engine:   engine,
		actuator: actuator,
		logger:   logger.With().Str("component", "monitor").Logger(),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start launches the loop in the background. It returns false if the loop
// was already started or has been stopped.
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != NotStarted {
		return false
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.state = Running
	go l.run(ctx)
	return true
}

// Stop cancels the loop and waits for an in-flight cycle to finish. It is
// safe to call more than once, and before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.state = Cancelled
	started := l.cancel != nil
	if started {
		l.cancel()
	}
	l.mu.Unlock()

	if started {
		<-l.done
	}
}

// Done is closed when a started loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	metrics.MonitorRunning.Set(1)
	defer metrics.MonitorRunning.Set(0)

	l.logger.Info().Dur("interval", l.cfg.Interval).Msg("Monitor started")
	defer l.logger.Info().Msg("Monitor stopped")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		l.safeCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// safeCycle runs one cycle, logging failures and recovering panics so the
// loop keeps going.
func (l *Loop) safeCycle(ctx context.Context) {
	start := time.Now()
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			l.logger.Error().Interface("panic", r).Msg("Monitor cycle panicked")
		}
		metrics.PollCyclesTotal.WithLabelValues(result).Inc()
		metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
		if l.cfg.OnCycle != nil {
			l.cfg.OnCycle()
		}
	}()

	if err := l.RunCycle(ctx); err != nil {
		result = "error"
		l.logger.Error().Err(err).Msg("Monitor cycle failed")
	}
}

// RunCycle performs a single detect, evaluate and enforce pass. Nothing is
// enforced once ctx is cancelled.
func (l *Loop) RunCycle(ctx context.Context) error {
	det, ok := l.detector.Detect(ctx)
	if !ok {
		l.logger.Debug().Msg("No foreground app detected")
		return nil
	}

	action, err := l.engine.Evaluate(ctx, det.Package, l.cfg.OwnPackage, l.cfg.Interval)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", det.Package, err)
	}

	ev := l.logger.Debug().Str("package", det.Package).Str("method", det.Method).Str("action", action.Kind())
	if ru, ok := action.(policy.RecordUsage); ok {
		ev = ev.Int("total_minutes", ru.NewTotalMinutes)
	}
	ev.Msg("Cycle decision")

	if ctx.Err() != nil {
		return nil
	}
	if err := l.actuator.Apply(ctx, action); err != nil {
		return fmt.Errorf("apply %s: %w", action.Kind(), err)
	}
	return nil
}
