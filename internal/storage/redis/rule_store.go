package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/redis/go-redis/v9"
)

// ruleStore keeps each rule as a JSON string; the weekday list does not map
// cleanly onto hash fields.
type ruleStore struct {
	client *redis.Client
}

func (s *ruleStore) Get(ctx context.Context, packageName string) (*storage.TimeLimit, error) {
	data, err := s.client.Get(ctx, ruleKey(packageName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rule storage.TimeLimit
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule: %w", err)
	}
	return &rule, nil
}

func (s *ruleStore) List(ctx context.Context) ([]storage.TimeLimit, error) {
	packages, err := s.client.SMembers(ctx, ruleIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return []storage.TimeLimit{}, nil
	}

	keys := make([]string, len(packages))
	for i, pkg := range packages {
		keys[i] = ruleKey(pkg)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	rules := make([]storage.TimeLimit, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var rule storage.TimeLimit
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("unmarshal rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *ruleStore) Upsert(ctx context.Context, rule storage.TimeLimit) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ruleKey(rule.PackageName), data, 0)
	pipe.SAdd(ctx, ruleIndexKey(), rule.PackageName)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *ruleStore) Delete(ctx context.Context, packageName string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, ruleKey(packageName))
	pipe.SRem(ctx, ruleIndexKey(), packageName)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
