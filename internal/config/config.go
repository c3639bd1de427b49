package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Device     DeviceConfig     `mapstructure:"device"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Events     EventsConfig     `mapstructure:"events"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Control    ControlConfig    `mapstructure:"control"`
}

// SupervisorConfig identifies the shield application that owns the device.
type SupervisorConfig struct {
	Package  string `mapstructure:"package"`
	Activity string `mapstructure:"activity"` // component brought forward on enforcement
}

// Component returns the package/activity component name of the supervisor.
func (s SupervisorConfig) Component() string {
	if strings.Contains(s.Activity, "/") {
		return s.Activity
	}
	return s.Package + "/" + s.Activity
}

// MonitorConfig defines the poll loop and foreground detection settings
type MonitorConfig struct {
	PollInterval     string `mapstructure:"poll_interval"`
	EventWindow      string `mapstructure:"event_window"`
	UsageStatsWindow string `mapstructure:"usage_stats_window"`
	DetectTimeout    string `mapstructure:"detect_timeout"`
}

// DeviceConfig selects how device shell commands are executed.
type DeviceConfig struct {
	Transport string `mapstructure:"transport"` // "adb" or "local"
	ADBPath   string `mapstructure:"adb_path"`
	Serial    string `mapstructure:"serial"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Path  string      `mapstructure:"path"`
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "memory"
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the redis connection used when storage.type is redis.
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyTTL       string `mapstructure:"key_ttl"`
}

// CacheConfig defines the allowlist registry cache
type CacheConfig struct {
	AppTTL  string `mapstructure:"app_ttl"`
	AppSize int    `mapstructure:"app_size"`
}

// EventsConfig defines where time's up notifications are published
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"` // empty disables NATS publishing
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// PolicyConfig defines the optional launch policy overlay
type PolicyConfig struct {
	LaunchPolicyDir string `mapstructure:"launch_policy_dir"` // empty disables the overlay
}

// UsageConfig defines usage retention and daily reset
type UsageConfig struct {
	RetentionDays  int    `mapstructure:"retention_days"`
	DailyResetTime string `mapstructure:"daily_reset_time"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// ControlConfig defines the local control socket the CLI talks to while the
// server is running.
type ControlConfig struct {
	Socket string `mapstructure:"socket"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TVWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("supervisor.package", "com.tvwarden.shield")
	v.SetDefault("supervisor.activity", ".MainActivity")

	v.SetDefault("monitor.poll_interval", "10s")
	v.SetDefault("monitor.event_window", "10m")
	v.SetDefault("monitor.usage_stats_window", "1m")
	v.SetDefault("monitor.detect_timeout", "3s")

	v.SetDefault("device.transport", "adb")
	v.SetDefault("device.adb_path", "adb")

	v.SetDefault("storage.path", "/var/lib/tvwarden/tvwarden.bolt")
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_ttl", "2160h")

	v.SetDefault("cache.app_ttl", "30s")
	v.SetDefault("cache.app_size", 256)

	v.SetDefault("events.subject_prefix", "tvwarden.events")

	v.SetDefault("usage.retention_days", 90)
	v.SetDefault("usage.daily_reset_time", "00:00")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("control.socket", "/run/tvwarden/control.sock")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Supervisor.Package == "" {
		return fmt.Errorf("supervisor package is required")
	}
	if cfg.Supervisor.Activity == "" {
		return fmt.Errorf("supervisor activity is required")
	}

	for name, value := range map[string]string{
		"monitor.poll_interval":      cfg.Monitor.PollInterval,
		"monitor.event_window":       cfg.Monitor.EventWindow,
		"monitor.usage_stats_window": cfg.Monitor.UsageStatsWindow,
		"monitor.detect_timeout":     cfg.Monitor.DetectTimeout,
		"cache.app_ttl":              cfg.Cache.AppTTL,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}

	switch cfg.Device.Transport {
	case "adb", "local":
	default:
		return fmt.Errorf("invalid device transport %q (want adb or local)", cfg.Device.Transport)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}

	if cfg.Cache.AppSize <= 0 {
		return fmt.Errorf("cache.app_size must be positive, got %d", cfg.Cache.AppSize)
	}

	if cfg.Usage.RetentionDays <= 0 {
		return fmt.Errorf("usage.retention_days must be positive, got %d", cfg.Usage.RetentionDays)
	}
	if _, err := time.Parse("15:04", cfg.Usage.DailyResetTime); err != nil {
		return fmt.Errorf("invalid usage.daily_reset_time %q (want HH:MM)", cfg.Usage.DailyResetTime)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	if cfg.Control.Socket == "" {
		return fmt.Errorf("control.socket is required")
	}

	return nil
}

// Duration parses a configuration duration that validate has already accepted.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
