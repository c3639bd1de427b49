package systemd

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd the service has finished starting up. Outside
// systemd it does nothing.
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping tells systemd the service is shutting down.
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyStatus sets the free-form status line shown by systemctl status.
func NotifyStatus(status string) error {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		return fmt.Errorf("failed to send sd_notify status: %w", err)
	}
	return nil
}

// NotifyWatchdog sends a keep-alive ping.
func NotifyWatchdog() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		return fmt.Errorf("failed to send sd_notify watchdog: %w", err)
	}
	return nil
}

// Watchdog pings systemd at most once per half watchdog interval. Ping is
// meant to be called after each monitor cycle, so a stalled loop lets the
// watchdog fire.
type Watchdog struct {
	interval time.Duration
	notify   func() error
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewWatchdog returns a Watchdog for the interval configured in
// WatchdogSec=, or nil when the watchdog is not enabled.
func NewWatchdog() (*Watchdog, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchdog settings: %w", err)
	}
	if interval == 0 {
		return nil, nil
	}
	return newWatchdog(interval, NotifyWatchdog, time.Now), nil
}

func newWatchdog(interval time.Duration, notify func() error, now func() time.Time) *Watchdog {
	return &Watchdog{interval: interval / 2, notify: notify, now: now}
}

// Ping notifies systemd if enough time has passed since the last ping.
func (w *Watchdog) Ping() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !w.last.IsZero() && now.Sub(w.last) < w.interval {
		return nil
	}
	if err := w.notify(); err != nil {
		return err
	}
	w.last = now
	return nil
}
