package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TVWARDEN_STORAGE_PATH", filepath.Join(dir, "data", "tvwarden.bolt"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Monitor.PollInterval != "10s" {
		t.Errorf("expected poll interval 10s, got %q", cfg.Monitor.PollInterval)
	}
	if cfg.Usage.RetentionDays != 90 {
		t.Errorf("expected retention 90 days, got %d", cfg.Usage.RetentionDays)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected bolt storage, got %q", cfg.Storage.Type)
	}
	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("expected storage directory to be created: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
supervisor:
  package: com.example.shield
  activity: com.example.shield/.Home
monitor:
  poll_interval: 30s
storage:
  type: memory
usage:
  retention_days: 7
  daily_reset_time: "04:30"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Supervisor.Package != "com.example.shield" {
		t.Errorf("unexpected supervisor package %q", cfg.Supervisor.Package)
	}
	if got := cfg.Supervisor.Component(); got != "com.example.shield/.Home" {
		t.Errorf("unexpected supervisor component %q", got)
	}
	if got := Duration(cfg.Monitor.PollInterval, time.Second); got != 30*time.Second {
		t.Errorf("expected 30s poll interval, got %s", got)
	}
	if cfg.Usage.DailyResetTime != "04:30" {
		t.Errorf("unexpected reset time %q", cfg.Usage.DailyResetTime)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "zero poll interval",
			content: "storage:\n  type: memory\nmonitor:\n  poll_interval: 0s\n",
			wantErr: "monitor.poll_interval",
		},
		{
			name:    "unknown storage",
			content: "storage:\n  type: sqlite\n",
			wantErr: "invalid storage type",
		},
		{
			name:    "bad transport",
			content: "storage:\n  type: memory\ndevice:\n  transport: usb\n",
			wantErr: "invalid device transport",
		},
		{
			name:    "bad reset time",
			content: "storage:\n  type: memory\nusage:\n  daily_reset_time: midnight\n",
			wantErr: "daily_reset_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSupervisorComponent(t *testing.T) {
	s := SupervisorConfig{Package: "com.example.shield", Activity: ".MainActivity"}
	if got := s.Component(); got != "com.example.shield/.MainActivity" {
		t.Fatalf("unexpected component %q", got)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Storage.Type != "bolt" {
		t.Errorf("Storage.Type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Monitor.PollInterval != "10s" {
		t.Errorf("Monitor.PollInterval = %q, want 10s", cfg.Monitor.PollInterval)
	}
	if cfg.Events.NATSURL != "" {
		t.Errorf("Events.NATSURL = %q, want empty", cfg.Events.NATSURL)
	}
	if cfg.Control.Socket != "/run/tvwarden/control.sock" {
		t.Errorf("Control.Socket = %q, want /run/tvwarden/control.sock", cfg.Control.Socket)
	}
}
