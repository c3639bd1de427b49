package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/config"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/goodtune/tvwarden/internal/events"
	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/monitor"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/systemd"
	"github.com/goodtune/tvwarden/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the tvwarden agent",
	Long:  `Start the poll loop, the daily reset scheduler, the control socket and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting tvwarden")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	broadcaster := events.NewBroadcaster()
	sinks := events.Fanout{events.LogSink{Logger: logger}, broadcaster}
	if cfg.Events.NATSURL != "" {
		natsSink, err := events.NewNATSSink(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize NATS publisher: %w", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
		logger.Info().Str("url", cfg.Events.NATSURL).Msg("Publishing events to NATS")
	}

	a, err := newAgent(cfg, clock.RealClock{}, sinks, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kiosk mode only lets allowlisted apps run on top of the shield.
	a.actuator.SyncLockTaskAllowlist(ctx)

	resetScheduler, err := usage.NewResetScheduler(a.ledger, cfg.Usage.DailyResetTime, cfg.Usage.RetentionDays,
		func(ctx context.Context) error {
			a.actuator.UnsuspendAll(ctx)
			return nil
		}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reset scheduler: %w", err)
	}

	watchdog, err := systemd.NewWatchdog()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read systemd watchdog settings")
	}

	loop := monitor.New(monitor.Config{
		OwnPackage: cfg.Supervisor.Package,
		Interval:   a.pollInterval(),
		OnCycle: func() {
			if err := watchdog.Ping(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		},
	}, a.detector, a.engine, a.actuator, logger)

	controlListener, err := control.Listen(cfg.Control.Socket)
	if err != nil {
		return fmt.Errorf("failed to open control socket: %w", err)
	}
	controlServer := control.NewServer(a.control, logger)

	g, ctx := errgroup.WithContext(ctx)

	if !loop.Start(ctx) {
		return fmt.Errorf("monitor loop already started")
	}
	g.Go(func() error {
		<-ctx.Done()
		loop.Stop()
		return nil
	})

	g.Go(func() error {
		return resetScheduler.Run(ctx)
	})

	// launch, apps and limits commands reach the open store through here.
	g.Go(func() error {
		return controlServer.Serve(controlListener)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return controlServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		reportStatus(ctx, a.ledger, broadcaster, logger)
		return nil
	})

	if a.launch != nil {
		g.Go(func() error {
			reloadOnHangup(ctx, a, logger)
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer := metrics.NewServer(metricsAddr, func() error {
			if s := loop.State(); s != monitor.Running {
				return fmt.Errorf("monitor is %s", s)
			}
			return nil
		}, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		g.Go(metricsServer.Serve)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info().
		Dur("poll_interval", a.pollInterval()).
		Str("supervisor", cfg.Supervisor.Component()).
		Str("control_socket", cfg.Control.Socket).
		Msg("tvwarden startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("tvwarden stopped with error")
		return err
	}

	logger.Info().Msg("tvwarden stopped")
	return nil
}

// reloadOnHangup reloads the launch policy each time SIGHUP arrives.
func reloadOnHangup(ctx context.Context, a *agent, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info().Msg("SIGHUP received, reloading launch policy...")
			if err := a.launch.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload launch policy")
				continue
			}
			logger.Info().Msg("Launch policy reloaded successfully")
		}
	}
}

// reportStatus mirrors today's usage and time's up events into the systemd
// status line.
func reportStatus(ctx context.Context, ledger *usage.Ledger, broadcaster *events.Broadcaster, logger zerolog.Logger) {
	snapshots := ledger.Watch(ctx)
	notices := broadcaster.Subscribe(ctx, 8)

	for {
		var status string
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			status = usageStatus(snapshot)
		case ev, ok := <-notices:
			if !ok {
				return
			}
			status = fmt.Sprintf("Time's up for %s", displayOrPackage(ev.DisplayName, ev.Package))
		}
		if err := systemd.NotifyStatus(status); err != nil {
			logger.Debug().Err(err).Msg("Failed to send systemd status")
		}
	}
}

func usageStatus(snapshot []storage.DailyUsage) string {
	total := 0
	for _, u := range snapshot {
		total += u.Minutes
	}
	return fmt.Sprintf("%d apps used today, %d minutes total", len(snapshot), total)
}

func displayOrPackage(name, pkg string) string {
	if name != "" {
		return name
	}
	return pkg
}
