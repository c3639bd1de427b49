// Package device talks to the Android system services of the television,
// either over adb or from a process running on the device itself.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Transports accepted by NewShell.
const (
	TransportADB   = "adb"
	TransportLocal = "local"
)

// Shell runs a command in the device's shell and returns its standard output.
type Shell interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ADBShell runs commands through `adb shell`.
type ADBShell struct {
	Binary string // defaults to "adb"
	Serial string // optional device serial
}

func (s ADBShell) Run(ctx context.Context, args ...string) (string, error) {
	bin := s.Binary
	if bin == "" {
		bin = "adb"
	}
	argv := make([]string, 0, len(args)+3)
	if s.Serial != "" {
		argv = append(argv, "-s", s.Serial)
	}
	argv = append(argv, "shell")
	argv = append(argv, args...)
	return run(ctx, bin, argv...)
}

// LocalShell runs commands directly, for an agent running on the device.
type LocalShell struct{}

func (LocalShell) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("no command")
	}
	return run(ctx, args[0], args[1:]...)
}

// NewShell returns the shell for a configured transport.
func NewShell(transport, adbPath, serial string) (Shell, error) {
	switch transport {
	case TransportADB, "":
		return ADBShell{Binary: adbPath, Serial: serial}, nil
	case TransportLocal:
		return LocalShell{}, nil
	default:
		return nil, fmt.Errorf("unknown device transport %q", transport)
	}
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}
