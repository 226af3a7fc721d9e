package svc

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"popreport/internal/config"
	"popreport/internal/repo"
	"popreport/pkg/cachestore"
	"popreport/pkg/kvstore"
	"popreport/pkg/loader"
)

type ServiceContext struct {
	Config config.Config

	Cache    *cachestore.Store
	Datasets *repo.Datasets

	// Set only for the postgres backend.
	DBConn sqlx.SqlConn
}

// NewServiceContext wires the cache backend, the loader and the dataset
// registry. It exits the process when any of them cannot be built.
func NewServiceContext(c config.Config, opts ...loader.Option) *ServiceContext {
	svc, err := Build(context.Background(), c, opts...)
	logx.Must(err)
	return svc
}

// Build is NewServiceContext with an error return. Extra loader options are
// applied after the configured ones.
func Build(ctx context.Context, c config.Config, opts ...loader.Option) (*ServiceContext, error) {
	if c.Loader.Value == nil {
		return nil, fmt.Errorf("svc: loader config is not hydrated")
	}
	svc := &ServiceContext{Config: c}

	kv, err := svc.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	svc.Cache = cachestore.New(kv,
		cachestore.WithVersion(c.Cache.Version),
		cachestore.WithMaxUsagePercent(c.Cache.MaxUsagePercent),
		cachestore.WithFallbackQuota(c.Cache.FallbackQuota),
	)

	primary, err := c.Loader.Value.BuildLoader(svc.Cache, opts...)
	if err != nil {
		return nil, fmt.Errorf("svc: build loader: %w", err)
	}
	svc.Datasets, err = repo.NewDatasets(primary)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *ServiceContext) openBackend(ctx context.Context) (kvstore.Store, error) {
	c := s.Config
	switch c.Cache.Backend {
	case config.BackendFile:
		store, err := kvstore.OpenFileStore(c.CachePath(), c.Cache.Quota)
		if err != nil {
			return nil, fmt.Errorf("svc: open file cache: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			return nil, fmt.Errorf("svc: connect redis: %w", err)
		}
		return kvstore.NewRedisStore(rds, cachestore.Namespace(c.Cache.Version)+":"), nil
	case config.BackendPostgres:
		db, err := sql.Open("pgx", c.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("svc: open postgres: %w", err)
		}
		db.SetMaxOpenConns(c.Postgres.MaxOpen)
		db.SetMaxIdleConns(c.Postgres.MaxIdle)
		s.DBConn = sqlx.NewSqlConnFromDB(db)
		store := kvstore.NewSQLStore(s.DBConn, c.Cache.Quota)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("svc: prepare cache table: %w", err)
		}
		return store, nil
	default:
		return kvstore.NewMemoryStore(c.Cache.Quota), nil
	}
}

// Close stops background loads.
func (s *ServiceContext) Close() {
	if s.Datasets != nil {
		s.Datasets.Close()
	}
}
