package detect

import (
	"context"
	"sort"
	"time"
)

// EventLogStrategy replays the activity event log over window and returns the
// most recently resumed package that has not been paused since.
func EventLogStrategy(src EventSource, window time.Duration) Strategy {
	return Strategy{
		Name: MethodEventLog,
		Find: func(ctx context.Context, now time.Time) (string, bool, error) {
			events, err := src.ActivityEvents(ctx, now.Add(-window), now)
			if err != nil {
				return "", false, err
			}
			pkg := lastResumed(events)
			return pkg, pkg != "", nil
		},
	}
}

func lastResumed(events []ActivityEvent) string {
	sorted := make([]ActivityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var current string
	for _, ev := range sorted {
		switch ev.Type {
		case EventResumed:
			current = ev.Package
		case EventPaused:
			if ev.Package == current {
				current = ""
			}
		}
	}
	return current
}

// RunningTaskStrategy asks for the top-most running task.
func RunningTaskStrategy(src TaskSource) Strategy {
	return Strategy{
		Name: MethodRunningTask,
		Find: func(ctx context.Context, _ time.Time) (string, bool, error) {
			pkg, err := src.TopTaskPackage(ctx)
			if err != nil {
				return "", false, err
			}
			return pkg, pkg != "", nil
		},
	}
}

// UsageStatsStrategy picks, among packages with foreground time in window,
// the one used most recently.
func UsageStatsStrategy(src UsageStatsSource, window time.Duration) Strategy {
	return Strategy{
		Name: MethodUsageStats,
		Find: func(ctx context.Context, now time.Time) (string, bool, error) {
			stats, err := src.UsageStats(ctx, now.Add(-window), now)
			if err != nil {
				return "", false, err
			}
			var best UsageStat
			for _, s := range stats {
				if s.ForegroundTime <= 0 || s.Package == "" {
					continue
				}
				if best.Package == "" || s.LastUsed.After(best.LastUsed) {
					best = s
				}
			}
			return best.Package, best.Package != "", nil
		},
	}
}
