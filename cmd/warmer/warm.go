package main

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
)

type warmer struct {
	svc         *svc.ServiceContext
	prefetch    []string
	waitTimeout time.Duration
}

// cycle summarises one warm run.
type cycle struct {
	Currency   string
	Loaded     int
	Complete   bool
	Prefetched map[string]int
	Evicted    int
}

func (w *warmer) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *warmer) run(ctx context.Context) {
	start := time.Now()
	c, err := w.warm(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("warmer: cycle failed err=%v took=%s", err, time.Since(start))
		return
	}
	logx.WithContext(ctx).Infof("warmer: cycle done currency=%s loaded=%d complete=%t prefetched=%v evicted=%d took=%s",
		c.Currency, c.Loaded, c.Complete, c.Prefetched, c.Evicted, time.Since(start))
}

// warm reloads the primary currency, waits for its background phase, copies
// the same periods for every prefetch currency into the cache and finally
// trims the cache if it grew past the threshold.
func (w *warmer) warm(ctx context.Context) (*cycle, error) {
	res, err := w.svc.Datasets.Reload(ctx, "")
	if err != nil {
		return nil, err
	}
	c := &cycle{Currency: res.Currency, Prefetched: make(map[string]int, len(w.prefetch))}

	waitCtx, cancel := context.WithTimeout(ctx, w.waitTimeout)
	err = res.Wait(waitCtx)
	cancel()
	if err != nil {
		logx.WithContext(ctx).Infof("warmer: background load still running currency=%s loaded=%d", res.Currency, res.Len())
	}
	c.Loaded = res.Len()
	c.Complete = res.Complete()

	periods := make([]string, 0, c.Loaded)
	for _, rec := range res.Records() {
		periods = append(periods, rec.Month)
	}
	primary, err := w.svc.Datasets.Loader("")
	if err != nil {
		return nil, err
	}
	for _, cur := range w.prefetch {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.Prefetched[cur] = primary.PrefetchCurrency(ctx, cur, periods)
	}

	c.Evicted, err = w.svc.Cache.CleanupIfNeeded(ctx, w.svc.Datasets.ProtectedKeys())
	if err != nil {
		return nil, err
	}
	return c, nil
}
