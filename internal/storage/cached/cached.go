// Package cached puts a short-lived read-through cache in front of the
// allowlist registry, which the poll loop reads on every cycle.
package cached

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/tvwarden/internal/metrics"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AppStore wraps a storage.AppStore with an expirable LRU keyed by package.
// Misses (ErrNotFound) are cached too, as nil entries.
type AppStore struct {
	next  storage.AppStore
	cache *expirable.LRU[string, *storage.App]
}

// NewAppStore returns a caching AppStore holding at most size entries for ttl.
func NewAppStore(next storage.AppStore, size int, ttl time.Duration) *AppStore {
	return &AppStore{
		next:  next,
		cache: expirable.NewLRU[string, *storage.App](size, nil, ttl),
	}
}

func (s *AppStore) Get(ctx context.Context, packageName string) (*storage.App, error) {
	if app, ok := s.cache.Get(packageName); ok {
		metrics.AppCacheHits.Inc()
		if app == nil {
			return nil, storage.ErrNotFound
		}
		clone := *app
		return &clone, nil
	}
	metrics.AppCacheMisses.Inc()

	app, err := s.next.Get(ctx, packageName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.cache.Add(packageName, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	clone := *app
	s.cache.Add(packageName, &clone)
	return app, nil
}

// List always reads through; listings are operator-facing and infrequent.
func (s *AppStore) List(ctx context.Context) ([]storage.App, error) {
	return s.next.List(ctx)
}

func (s *AppStore) Upsert(ctx context.Context, app storage.App) error {
	s.cache.Remove(app.PackageName)
	return s.next.Upsert(ctx, app)
}

func (s *AppStore) Delete(ctx context.Context, packageName string) error {
	s.cache.Remove(packageName)
	return s.next.Delete(ctx, packageName)
}

// Purge drops every cached entry.
func (s *AppStore) Purge() {
	s.cache.Purge()
}

// Store wraps a storage.Store so Apps() returns the cached registry.
type Store struct {
	storage.Store
	apps *AppStore
}

// Wrap returns store with its registry cached.
func Wrap(store storage.Store, size int, ttl time.Duration) *Store {
	return &Store{Store: store, apps: NewAppStore(store.Apps(), size, ttl)}
}

// Apps returns the cached registry.
func (s *Store) Apps() storage.AppStore { return s.apps }
