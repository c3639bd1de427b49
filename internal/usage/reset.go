package usage

import (
	"context"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/rs/zerolog"
)

// DefaultRetentionDays is how many days of usage history are kept.
const DefaultRetentionDays = 90

// ResetHook runs at each daily reset, before old usage is pruned.
type ResetHook func(ctx context.Context) error

// ResetScheduler manages daily resets. Usage itself rolls over on its own
// because the ledger keys entries by date; the scheduler lifts suspensions
// left over from yesterday and prunes old history.
type ResetScheduler struct {
	ledger        *Ledger
	hook          ResetHook
	clock         clock.Clock
	resetTime     time.Time // only hour and minute are used
	retentionDays int
	logger        zerolog.Logger
}

// NewResetScheduler creates a new reset scheduler. hook may be nil.
func NewResetScheduler(ledger *Ledger, resetTime string, retentionDays int, hook ResetHook, logger zerolog.Logger) (*ResetScheduler, error) {
	parsedTime, err := time.Parse("15:04", resetTime)
	if err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &ResetScheduler{
		ledger:        ledger,
		hook:          hook,
		clock:         ledger.clock,
		resetTime:     parsedTime,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "reset-scheduler").Logger(),
	}, nil
}

// Run waits for each reset time and performs the reset until ctx is done.
func (rs *ResetScheduler) Run(ctx context.Context) error {
	rs.logger.Info().
		Str("reset_time", rs.resetTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Daily reset scheduler started")

	for {
		nextReset := rs.nextReset()
		waitDuration := nextReset.Sub(rs.clock.Now())

		rs.logger.Info().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			rs.PerformReset(ctx)
		case <-ctx.Done():
			timer.Stop()
			rs.logger.Info().Msg("Daily reset scheduler stopped")
			return nil
		}
	}
}

// nextReset calculates the next reset time strictly after now.
func (rs *ResetScheduler) nextReset() time.Time {
	now := rs.clock.Now()

	todayReset := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.resetTime.Hour(), rs.resetTime.Minute(), 0, 0,
		now.Location(),
	)

	if !now.Before(todayReset) {
		return todayReset.AddDate(0, 0, 1)
	}
	return todayReset
}

// PerformReset runs the hook and prunes usage older than the retention window.
// Failures are logged; the next reset tries again.
func (rs *ResetScheduler) PerformReset(ctx context.Context) {
	rs.logger.Info().Msg("Performing daily reset")

	if rs.hook != nil {
		if err := rs.hook(ctx); err != nil {
			rs.logger.Error().Err(err).Msg("Daily reset hook failed")
		}
	}

	deleted, err := rs.ledger.Prune(ctx, rs.retentionDays)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to clean up old daily usage data")
		return
	}

	rs.logger.Info().
		Int("entries_deleted", deleted).
		Int("retention_days", rs.retentionDays).
		Msg("Daily reset complete, old data cleaned up")
}
