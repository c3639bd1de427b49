package bolt

import (
	"context"

	"github.com/goodtune/tvwarden/internal/storage"
	"go.etcd.io/bbolt"
)

type ruleStore struct {
	db *bbolt.DB
}

func (s *ruleStore) Get(ctx context.Context, packageName string) (*storage.TimeLimit, error) {
	return getBucketValue[storage.TimeLimit](ctx, s.db, bucketRules, packageName)
}

func (s *ruleStore) List(ctx context.Context) ([]storage.TimeLimit, error) {
	return listBucket[storage.TimeLimit](ctx, s.db, bucketRules)
}

func (s *ruleStore) Upsert(ctx context.Context, rule storage.TimeLimit) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return putBucketValue(ctx, s.db, bucketRules, rule.PackageName, rule)
}

func (s *ruleStore) Delete(ctx context.Context, packageName string) error {
	return deleteBucketValue(ctx, s.db, bucketRules, packageName)
}
