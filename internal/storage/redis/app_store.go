package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/redis/go-redis/v9"
)

type appStore struct {
	client *redis.Client
}

// Get retrieves an app by package name
func (s *appStore) Get(ctx context.Context, packageName string) (*storage.App, error) {
	data, err := s.client.HGetAll(ctx, appKey(packageName)).Result()
	if err != nil {
		return nil, err
	}
	return parseApp(data)
}

// List returns every registered app
func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	packages, err := s.client.SMembers(ctx, appIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	if len(packages) == 0 {
		return []storage.App{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(packages))
	for i, pkg := range packages {
		cmds[i] = pipe.HGetAll(ctx, appKey(pkg))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	apps := make([]storage.App, 0, len(packages))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		app, err := parseApp(data)
		if err == nil {
			apps = append(apps, *app)
		}
	}

	return apps, nil
}

// Upsert creates or replaces an app
func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if app.PackageName == "" {
		return fmt.Errorf("app package_name is required")
	}

	args := []any{app.PackageName}
	for field, value := range appFields(app) {
		args = append(args, field, value)
	}

	script := redis.NewScript(upsertAppScript)
	return script.Run(ctx, s.client, []string{appKey(app.PackageName), appIndexKey()}, args...).Err()
}

// Delete removes an app from the registry
func (s *appStore) Delete(ctx context.Context, packageName string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, appKey(packageName))
	pipe.SRem(ctx, appIndexKey(), packageName)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
