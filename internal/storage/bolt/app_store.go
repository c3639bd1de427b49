package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/tvwarden/internal/storage"
	"go.etcd.io/bbolt"
)

type appStore struct {
	db *bbolt.DB
}

func (s *appStore) Get(ctx context.Context, packageName string) (*storage.App, error) {
	return getBucketValue[storage.App](ctx, s.db, bucketApps, packageName)
}

func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	return listBucket[storage.App](ctx, s.db, bucketApps)
}

func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if app.PackageName == "" {
		return fmt.Errorf("app package_name is required")
	}
	return putBucketValue(ctx, s.db, bucketApps, app.PackageName, app)
}

func (s *appStore) Delete(ctx context.Context, packageName string) error {
	return deleteBucketValue(ctx, s.db, bucketApps, packageName)
}
