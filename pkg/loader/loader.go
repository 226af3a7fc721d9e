package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"popreport/pkg/cachestore"
	"popreport/pkg/dataset"
)

const (
	defaultCurrency      = "USD"
	defaultMaxConcurrent = 3
	defaultRecentWindow  = 48
)

// Loader fetches the manifest and monthly shards, reading through and writing
// through a cachestore.Store. A nil cache disables caching.
type Loader struct {
	client        *Client
	cache         *cachestore.Store
	currency      string
	maxConcurrent int
	recentWindow  int
	onProgress    ProgressFunc
	nowFn         func() time.Time

	progressMu sync.Mutex

	mu     sync.Mutex
	active *Result
}

// Option configures a Loader.
type Option func(*Loader)

// WithCurrency sets the primary currency used by LoadAll.
func WithCurrency(currency string) Option {
	return func(l *Loader) {
		l.currency = currency
	}
}

// WithMaxConcurrent bounds the number of in-flight shard requests.
func WithMaxConcurrent(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxConcurrent = n
		}
	}
}

// WithRecentWindow sets how many of the newest complete periods LoadAll waits for.
func WithRecentWindow(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.recentWindow = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) {
		l.onProgress = fn
	}
}

// WithClock overrides the clock used to decide which periods are complete.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		if now != nil {
			l.nowFn = now
		}
	}
}

// New constructs a Loader.
func New(client *Client, cache *cachestore.Store, opts ...Option) (*Loader, error) {
	if client == nil {
		return nil, fmt.Errorf("loader: client is required")
	}
	l := &Loader{
		client:        client,
		cache:         cache,
		currency:      defaultCurrency,
		maxConcurrent: defaultMaxConcurrent,
		recentWindow:  defaultRecentWindow,
		nowFn:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	cur, err := dataset.NormalizeCurrency(l.currency)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	l.currency = cur
	return l, nil
}

// ForCurrency returns a loader sharing this one's client, cache and settings
// but targeting another currency. Background work is tracked separately.
func (l *Loader) ForCurrency(currency string) (*Loader, error) {
	cur, err := dataset.NormalizeCurrency(currency)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return &Loader{
		client:        l.client,
		cache:         l.cache,
		currency:      cur,
		maxConcurrent: l.maxConcurrent,
		recentWindow:  l.recentWindow,
		onProgress:    l.onProgress,
		nowFn:         l.nowFn,
	}, nil
}

// Currency returns the primary currency.
func (l *Loader) Currency() string { return l.currency }

// Client returns the underlying shard client.
func (l *Loader) Client() *Client { return l.client }

// LoadManifest returns the cached manifest, fetching and caching it on a miss.
func (l *Loader) LoadManifest(ctx context.Context) (*dataset.Manifest, error) {
	if l.cache != nil {
		var cached dataset.Manifest
		hit, err := l.cache.Get(ctx, cachestore.ManifestKey, &cached)
		if err != nil {
			logx.WithContext(ctx).Errorf("loader: read cached manifest err=%v", err)
		} else if hit {
			return &cached, nil
		}
	}

	manifest, err := l.client.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	l.store(ctx, cachestore.ManifestKey, manifest)
	return manifest, nil
}

// LoadMonth returns one shard, cache first. Identifiers are normalised before
// the cache key is built so differently-cased inputs share one entry.
func (l *Loader) LoadMonth(ctx context.Context, period, currency string) (*dataset.MonthlyRecord, error) {
	cur, err := dataset.NormalizeCurrency(currency)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	period, err = dataset.ParsePeriod(period)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	key := cachestore.DataKey(cur, period)

	if l.cache != nil {
		var cached dataset.MonthlyRecord
		hit, err := l.cache.Get(ctx, key, &cached)
		if err != nil {
			logx.WithContext(ctx).Errorf("loader: read cached shard key=%s err=%v", key, err)
		} else if hit {
			return &cached, nil
		}
	}

	rec, err := l.client.FetchMonth(ctx, cur, period)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidShard, cur, period, err)
	}
	if rec.Month != period || rec.Currency != cur {
		return nil, fmt.Errorf("%w: %s/%s: payload is %s/%s", ErrInvalidShard, cur, period, rec.Currency, rec.Month)
	}
	l.store(ctx, key, rec)
	return rec, nil
}

// store writes through to the cache. Failures only cost a refetch later.
func (l *Loader) store(ctx context.Context, key string, v any) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, key, v); err != nil {
		logx.WithContext(ctx).Errorf("loader: cache write key=%s err=%v", key, err)
	}
}

// LoadMonths fetches periods in batches of at most maxConcurrent requests and
// returns the records in input order. Any failure fails the whole call.
func (l *Loader) LoadMonths(ctx context.Context, periods []string, currency string) ([]dataset.MonthlyRecord, error) {
	out := make([]dataset.MonthlyRecord, len(periods))
	err := l.loadBatches(ctx, periods, currency, func(i int, rec dataset.MonthlyRecord) {
		out[i] = rec
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// loadBatches runs each batch in parallel and waits for it before starting the
// next. onItem is serialised.
func (l *Loader) loadBatches(ctx context.Context, periods []string, currency string, onItem func(int, dataset.MonthlyRecord)) error {
	var mu sync.Mutex
	for start := 0; start < len(periods); start += l.maxConcurrent {
		end := min(start+l.maxConcurrent, len(periods))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				rec, err := l.LoadMonth(gctx, periods[i], currency)
				if err != nil {
					return err
				}
				mu.Lock()
				onItem(i, *rec)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// PrefetchCurrency warms the cache for currency one period at a time. Failures
// are logged and skipped. It returns the number of periods loaded.
func (l *Loader) PrefetchCurrency(ctx context.Context, currency string, periods []string) int {
	loaded := 0
	for _, period := range periods {
		if ctx.Err() != nil {
			break
		}
		if _, err := l.LoadMonth(ctx, period, currency); err != nil {
			logx.WithContext(ctx).Errorf("loader: prefetch period=%s currency=%s err=%v", period, currency, err)
			continue
		}
		loaded++
	}
	return loaded
}

// ClearCache drops every cached manifest and shard in the namespace.
func (l *Loader) ClearCache(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Clear(ctx)
}

// Cancel abandons the background phase of the most recent LoadAll, if any.
func (l *Loader) Cancel() {
	l.mu.Lock()
	active := l.active
	l.active = nil
	l.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
}

func (l *Loader) supersede(res *Result) {
	l.mu.Lock()
	prev := l.active
	l.active = res
	l.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}
