package kvstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps values in a shared Redis instance. Keys are listed with a
// pattern scoped to prefix so unrelated keys in the same database are ignored.
type RedisStore struct {
	rds    *redis.Redis
	prefix string
}

// NewRedisStore wraps a go-zero Redis client. prefix narrows Keys to the
// cache namespace; an empty prefix lists the whole database.
func NewRedisStore(rds *redis.Redis, prefix string) *RedisStore {
	return &RedisStore{rds: rds, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rds.GetCtx(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("kvstore: redis get %s: %w", key, err)
	}
	// go-zero maps a missing key to an empty string; the cache never stores
	// empty values, so an empty reply is a miss.
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rds.SetCtx(ctx, key, value); err != nil {
		if isRedisOOM(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("kvstore: redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if _, err := r.rds.DelCtx(ctx, key); err != nil {
		return fmt.Errorf("kvstore: redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.rds.KeysCtx(ctx, r.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("kvstore: redis keys %s*: %w", r.prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// isRedisOOM detects the maxmemory rejection Redis returns once its memory
// limit is reached under a noeviction policy.
func isRedisOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}
