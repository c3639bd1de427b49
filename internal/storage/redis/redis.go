package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/config"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tvwarden"

// defaultUsageTTL keeps daily usage keys for the default 90-day retention window.
const defaultUsageTTL = 90 * 24 * time.Hour

// Store implements the storage.Store interface using Redis
type Store struct {
	client     *redis.Client
	appStore   *appStore
	ruleStore  *ruleStore
	usageStore *usageStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	usageTTL := defaultUsageTTL
	if cfg.KeyTTL != "" {
		usageTTL, err = time.ParseDuration(cfg.KeyTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid key_ttl: %w", err)
		}
	}

	// Host may already carry a port (host:port); Port is appended only when set.
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:     client,
		appStore:   &appStore{client: client},
		ruleStore:  &ruleStore{client: client},
		usageStore: &usageStore{client: client, ttl: usageTTL},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Apps returns the AppStore implementation
func (s *Store) Apps() storage.AppStore {
	return s.appStore
}

// Rules returns the RuleStore implementation
func (s *Store) Rules() storage.RuleStore {
	return s.ruleStore
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

func appKey(packageName string) string {
	return fmt.Sprintf("%s:app:%s", keyPrefix, packageName)
}

func appIndexKey() string {
	return keyPrefix + ":apps"
}

func ruleKey(packageName string) string {
	return fmt.Sprintf("%s:rule:%s", keyPrefix, packageName)
}

func ruleIndexKey() string {
	return keyPrefix + ":rules"
}

func dailyUsageKey(date, packageName string) string {
	return fmt.Sprintf("%s:usage:daily:%s:%s", keyPrefix, date, packageName)
}

func dailyUsageIndexKey(date string) string {
	return fmt.Sprintf("%s:usage:daily:index:%s", keyPrefix, date)
}

func dailyUsageDatesKey() string {
	return keyPrefix + ":usage:daily:dates"
}
