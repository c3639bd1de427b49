package main

import (
	"context"
	"fmt"

	"github.com/goodtune/tvwarden/internal/clock"
	"github.com/goodtune/tvwarden/internal/config"
	"github.com/goodtune/tvwarden/internal/control"
)

// withService runs fn against the running server when its control socket
// answers, and against an in-process agent otherwise. The server holds the
// store open, so going through it is the only way to reach a bolt store
// while monitoring.
func withService(ctx context.Context, fn func(svc control.Service) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if client, err := control.Dial(ctx, cfg.Control.Socket); err == nil {
		return fn(client)
	}

	a, err := newAgent(cfg, clock.RealClock{}, nil, quietLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.control)
}
