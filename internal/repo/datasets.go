package repo

import (
	"context"
	"errors"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	"popreport/pkg/cachestore"
	"popreport/pkg/dataset"
	"popreport/pkg/loader"
)

// Datasets keeps one progressive load per currency. Loaders share the client
// and the cache of the primary loader; only the latest Result per currency is
// ever handed out.
type Datasets struct {
	primary *loader.Loader
	flight  syncx.SingleFlight

	mu      sync.Mutex
	loaders map[string]*loader.Loader
	results map[string]*loader.Result
}

func NewDatasets(primary *loader.Loader) (*Datasets, error) {
	if primary == nil {
		return nil, errors.New("repo: missing primary loader")
	}
	return &Datasets{
		primary: primary,
		flight:  syncx.NewSingleFlight(),
		loaders: map[string]*loader.Loader{primary.Currency(): primary},
		results: make(map[string]*loader.Result),
	}, nil
}

// DefaultCurrency is the primary loader's currency.
func (d *Datasets) DefaultCurrency() string { return d.primary.Currency() }

// Loader returns the loader for currency, creating it on first use. An empty
// currency selects the primary one.
func (d *Datasets) Loader(currency string) (*loader.Loader, error) {
	if currency == "" {
		return d.primary, nil
	}
	cur, err := dataset.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.loaders[cur]; ok {
		return l, nil
	}
	l, err := d.primary.ForCurrency(cur)
	if err != nil {
		return nil, err
	}
	d.loaders[cur] = l
	return l, nil
}

// Manifest returns the cached or freshly fetched manifest.
func (d *Datasets) Manifest(ctx context.Context) (*dataset.Manifest, error) {
	return d.primary.LoadManifest(ctx)
}

// Dataset returns the current result for currency, running the first load
// when none exists. Concurrent first calls share one load.
func (d *Datasets) Dataset(ctx context.Context, currency string) (*loader.Result, error) {
	l, err := d.Loader(currency)
	if err != nil {
		return nil, err
	}
	cur := l.Currency()
	if res := d.current(cur); res != nil {
		return res, nil
	}
	v, err := d.flight.Do(cur, func() (any, error) {
		if res := d.current(cur); res != nil {
			return res, nil
		}
		return d.load(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return v.(*loader.Result), nil
}

// Reload starts a fresh load for currency. The previous result's background
// phase is cancelled and the new result replaces it. On failure the previous
// result stays in place.
func (d *Datasets) Reload(ctx context.Context, currency string) (*loader.Result, error) {
	l, err := d.Loader(currency)
	if err != nil {
		return nil, err
	}
	return d.load(ctx, l)
}

// load runs LoadAll and installs its result. A load overtaken by a newer one
// never replaces it: the caller gets the newer result once it is installed,
// ErrSuperseded before that.
func (d *Datasets) load(ctx context.Context, l *loader.Loader) (*loader.Result, error) {
	cur := l.Currency()
	res, err := l.LoadAll(ctx)
	if errors.Is(err, loader.ErrSuperseded) {
		return d.newer(cur, err)
	}
	if err != nil {
		logx.WithContext(ctx).Errorf("repo: load dataset currency=%s err=%v", cur, err)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// A newer LoadAll cancels this result before it can install its own, so
	// checking under the lock orders the two installs.
	if res.Cancelled() {
		return d.newerLocked(cur, loader.ErrSuperseded)
	}
	d.results[cur] = res
	return res, nil
}

func (d *Datasets) newer(currency string, err error) (*loader.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newerLocked(currency, err)
}

func (d *Datasets) newerLocked(currency string, err error) (*loader.Result, error) {
	if res := d.results[currency]; res != nil && !res.Cancelled() {
		return res, nil
	}
	return nil, err
}

func (d *Datasets) current(currency string) *loader.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.results[currency]
}

// Current returns the latest result for currency without loading.
func (d *Datasets) Current(currency string) (*loader.Result, bool) {
	if currency == "" {
		currency = d.primary.Currency()
	}
	cur, err := dataset.NormalizeCurrency(currency)
	if err != nil {
		return nil, false
	}
	res := d.current(cur)
	return res, res != nil
}

// ProtectedKeys collects the cleanup-protected keys of every current result.
func (d *Datasets) ProtectedKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := []string{cachestore.ManifestKey}
	seen := map[string]struct{}{cachestore.ManifestKey: {}}
	for _, res := range d.results {
		for _, k := range res.ProtectedKeys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Close cancels every background phase.
func (d *Datasets) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.loaders {
		l.Cancel()
	}
}
