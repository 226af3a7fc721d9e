//go:build integration
// +build integration

package kvstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("POP_REDIS_ADDR")
	if addr == "" {
		t.Skip("POP_REDIS_ADDR not set")
	}
	prefix := fmt.Sprintf("popintegration%d:", time.Now().UnixNano())
	s := NewRedisStore(redis.New(addr), prefix)
	ctx := context.Background()
	t.Cleanup(func() {
		keys, _ := s.Keys(ctx)
		for _, k := range keys {
			_ = s.Remove(ctx, k)
		}
	})

	require.NoError(t, s.Set(ctx, prefix+"a", "1"))
	require.NoError(t, s.Set(ctx, prefix+"b", "2"))
	v, ok, err := s.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + "a", prefix + "b"}, keys)

	require.NoError(t, s.Remove(ctx, prefix+"a"))
	_, ok, err = s.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLStoreIntegration(t *testing.T) {
	dsn := os.Getenv("POP_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POP_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s := NewSQLStore(sqlx.NewSqlConn("pgx", dsn), 0)
	require.NoError(t, s.EnsureSchema(ctx))

	key := fmt.Sprintf("popintegration:%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = s.Remove(context.Background(), key) })

	require.NoError(t, s.Set(ctx, key, "first"))
	require.NoError(t, s.Set(ctx, key, "second"))
	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, key)

	est, err := s.Estimate(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, est.Usage, int64(len(key)+len("second")))

	limited := NewSQLStore(sqlx.NewSqlConn("pgx", dsn), 1)
	assert.ErrorIs(t, limited.Set(ctx, key+":big", "value"), ErrQuotaExceeded)
}
