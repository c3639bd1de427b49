package main

import (
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/config"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/device"
	"github.com/goodtune/tvwarden/internal/enforce"
	"github.com/goodtune/tvwarden/internal/events"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/policy/opa"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/goodtune/tvwarden/internal/storage/bolt"
	"github.com/goodtune/tvwarden/internal/storage/cached"
	"github.com/goodtune/tvwarden/internal/storage/memory"
	"github.com/goodtune/tvwarden/internal/storage/redis"
	"github.com/goodtune/tvwarden/internal/usage"
	"github.com/rs/zerolog"
)

// agent is the set of components shared by the server and the one-shot
// commands.
type agent struct {
	cfg      *config.Config
	store    storage.Store
	ledger   *usage.Ledger
	detector *detect.Detector
	engine   *policy.Engine
	gate     *policy.Gate
	launch   *opa.Engine // nil when no launch policy is configured
	actuator *enforce.Actuator
	control  *control.Local
}

// newAgent opens storage and builds every component. sink may be nil.
func newAgent(cfg *config.Config, clk clock.Clock, sink events.Sink, logger zerolog.Logger) (*agent, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	shell, err := device.NewShell(cfg.Device.Transport, cfg.Device.ADBPath, cfg.Device.Serial)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dev := device.New(shell, cfg.Supervisor.Package, logger)

	ledger := usage.NewLedger(store.Usage(), clk, logger)
	detector := detect.New(dev, detect.Config{
		EventWindow:      config.Duration(cfg.Monitor.EventWindow, detect.DefaultEventWindow),
		UsageStatsWindow: config.Duration(cfg.Monitor.UsageStatsWindow, detect.DefaultUsageStatsWindow),
		AttemptTimeout:   config.Duration(cfg.Monitor.DetectTimeout, detect.DefaultAttemptTimeout),
	}, clk, logger)

	a := &agent{
		cfg:      cfg,
		store:    store,
		ledger:   ledger,
		detector: detector,
		engine:   policy.NewEngine(store.Apps(), store.Rules(), ledger, logger),
		gate:     policy.NewGate(store.Apps(), store.Rules(), ledger, dev, clk, logger),
		actuator: enforce.New(dev, dev, store.Apps(), sink, enforce.Supervisor{
			Package:   cfg.Supervisor.Package,
			Component: cfg.Supervisor.Component(),
		}, clk, logger),
	}
	a.control = control.NewLocal(control.LocalConfig{
		Store:        store,
		Ledger:       ledger,
		Gate:         a.gate,
		Apps:         apps.NewManager(store.Apps(), store.Rules(), ledger, nil, clk, logger),
		Detector:     detector,
		Allowlist:    a.actuator,
		OwnPackage:   cfg.Supervisor.Package,
		PollInterval: a.pollInterval(),
	}, logger)

	if cfg.Policy.LaunchPolicyDir != "" {
		launch, err := opa.NewEngine(cfg.Policy.LaunchPolicyDir, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load launch policy: %w", err)
		}
		a.launch = launch
		a.gate.SetPolicy(launch)
	}

	return a, nil
}

func (a *agent) Close() error {
	return a.store.Close()
}

func (a *agent) pollInterval() time.Duration {
	return config.Duration(a.cfg.Monitor.PollInterval, 10*time.Second)
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Storage.Type {
	case "bolt", "":
		store, err = bolt.Open(cfg.Storage.Path)
	case "redis":
		store, err = redis.Open(cfg.Storage.Redis)
	case "memory":
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}
	return cached.Wrap(store, cfg.Cache.AppSize, config.Duration(cfg.Cache.AppTTL, 30*time.Second)), nil
}
