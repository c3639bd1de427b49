package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/tvwarden/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the tvwarden configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))
		dumpConfig(cfg, config.Defaults())
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()
	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	return map[string]bool{
		"supervisor.package":  true,
		"supervisor.activity": true,

		"monitor.poll_interval":      true,
		"monitor.event_window":       true,
		"monitor.usage_stats_window": true,
		"monitor.detect_timeout":     true,

		"device.transport": true,
		"device.adb_path":  true,
		"device.serial":    true,

		"storage.path":                 true,
		"storage.type":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,
		"storage.redis.key_ttl":        true,

		"cache.app_ttl":  true,
		"cache.app_size": true,

		"events.nats_url":       true,
		"events.subject_prefix": true,

		"policy.launch_policy_dir": true,

		"usage.retention_days":   true,
		"usage.daily_reset_time": true,

		"logging.level":  true,
		"logging.format": true,

		"metrics.enabled":      true,
		"metrics.bind_address": true,
		"metrics.port":         true,

		"control.socket": true,
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[supervisor]")
	dumpField("  package", cfg.Supervisor.Package, defaultCfg.Supervisor.Package, yellow, green)
	dumpField("  activity", cfg.Supervisor.Activity, defaultCfg.Supervisor.Activity, yellow, green)

	_, _ = cyan.Println("\n[monitor]")
	dumpField("  poll_interval", cfg.Monitor.PollInterval, defaultCfg.Monitor.PollInterval, yellow, green)
	dumpField("  event_window", cfg.Monitor.EventWindow, defaultCfg.Monitor.EventWindow, yellow, green)
	dumpField("  usage_stats_window", cfg.Monitor.UsageStatsWindow, defaultCfg.Monitor.UsageStatsWindow, yellow, green)
	dumpField("  detect_timeout", cfg.Monitor.DetectTimeout, defaultCfg.Monitor.DetectTimeout, yellow, green)

	_, _ = cyan.Println("\n[device]")
	dumpField("  transport", cfg.Device.Transport, defaultCfg.Device.Transport, yellow, green)
	dumpField("  adb_path", cfg.Device.ADBPath, defaultCfg.Device.ADBPath, yellow, green)
	dumpField("  serial", cfg.Device.Serial, defaultCfg.Device.Serial, yellow, green)

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)
	dumpField("    key_ttl", cfg.Storage.Redis.KeyTTL, defaultCfg.Storage.Redis.KeyTTL, yellow, green)

	_, _ = cyan.Println("\n[cache]")
	dumpField("  app_ttl", cfg.Cache.AppTTL, defaultCfg.Cache.AppTTL, yellow, green)
	dumpField("  app_size", cfg.Cache.AppSize, defaultCfg.Cache.AppSize, yellow, green)

	_, _ = cyan.Println("\n[events]")
	dumpField("  nats_url", cfg.Events.NATSURL, defaultCfg.Events.NATSURL, yellow, green)
	dumpField("  subject_prefix", cfg.Events.SubjectPrefix, defaultCfg.Events.SubjectPrefix, yellow, green)

	_, _ = cyan.Println("\n[policy]")
	dumpField("  launch_policy_dir", cfg.Policy.LaunchPolicyDir, defaultCfg.Policy.LaunchPolicyDir, yellow, green)

	_, _ = cyan.Println("\n[usage]")
	dumpField("  retention_days", cfg.Usage.RetentionDays, defaultCfg.Usage.RetentionDays, yellow, green)
	dumpField("  daily_reset_time", cfg.Usage.DailyResetTime, defaultCfg.Usage.DailyResetTime, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	_, _ = cyan.Println("\n[metrics]")
	dumpField("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled, yellow, green)
	dumpField("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress, yellow, green)
	dumpField("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port, yellow, green)
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)
	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
