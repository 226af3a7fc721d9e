package loader

import (
	"context"
	"sort"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"popreport/pkg/cachestore"
	"popreport/pkg/dataset"
)

// Phase names one step of LoadAll.
type Phase string

const (
	PhaseManifest  Phase = "manifest"
	PhaseCurrent   Phase = "current"
	PhasePrevious  Phase = "previous"
	PhaseRecent    Phase = "recent"
	PhaseRemaining Phase = "remaining"
)

// Progress is delivered on every phase transition and every completed item.
type Progress struct {
	Phase      Phase   `json:"phase"`
	Loaded     int     `json:"loaded"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ProgressFunc receives progress updates. Calls are serialised.
type ProgressFunc func(Progress)

func (l *Loader) report(phase Phase, loaded, total int) {
	if l.onProgress == nil {
		return
	}
	p := Progress{Phase: phase, Loaded: loaded, Total: total}
	if total > 0 {
		p.Percentage = 100 * float64(loaded) / float64(total)
	}
	l.progressMu.Lock()
	defer l.progressMu.Unlock()
	l.onProgress(p)
}

// Result is the output of one LoadAll invocation. The month map keeps growing
// after LoadAll returns until the background phase finishes or is cancelled.
type Result struct {
	Manifest *dataset.Manifest
	Currency string

	mu        sync.RWMutex
	months    map[string]dataset.MonthlyRecord
	latest    string
	cancelled bool
	cancel    context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

func newResult(currency string, cancel context.CancelFunc) *Result {
	return &Result{
		Currency: currency,
		months:   make(map[string]dataset.MonthlyRecord),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// put stores rec unless the result was cancelled. The check and the write
// share the lock, so nothing lands after Cancel returns.
func (r *Result) put(period string, rec dataset.MonthlyRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.months[period] = rec
	return true
}

func (r *Result) finish() {
	r.doneOnce.Do(func() { close(r.done) })
	if r.cancel != nil {
		r.cancel()
	}
}

// Month returns the record for period, if loaded.
func (r *Result) Month(period string) (dataset.MonthlyRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.months[period]
	return rec, ok
}

// Months returns a snapshot of the loaded records keyed by period.
func (r *Result) Months() map[string]dataset.MonthlyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]dataset.MonthlyRecord, len(r.months))
	for k, v := range r.months {
		out[k] = v
	}
	return out
}

// Records returns a snapshot of the loaded records in period order.
func (r *Result) Records() []dataset.MonthlyRecord {
	r.mu.RLock()
	out := make([]dataset.MonthlyRecord, 0, len(r.months))
	for _, v := range r.months {
		out = append(out, v)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Len is the number of loaded periods.
func (r *Result) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.months)
}

// Latest is the most recent complete period, empty when there is none.
func (r *Result) Latest() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Done is closed once the background phase ends for any reason.
func (r *Result) Done() <-chan struct{} { return r.done }

// Complete reports whether the background phase has ended.
func (r *Result) Complete() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the background phase ends or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the background phase. Records already stored remain readable.
func (r *Result) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (r *Result) Cancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

// ProtectedKeys lists the cache keys that cleanup should keep for this result:
// the manifest and the most recent complete period.
func (r *Result) ProtectedKeys() []string {
	keys := []string{cachestore.ManifestKey}
	if latest := r.Latest(); latest != "" {
		keys = append(keys, cachestore.DataKey(r.Currency, latest))
	}
	return keys
}

// LoadAll runs the progressive schedule for the loader's currency: manifest,
// latest complete period, previous period, the recent window, then the rest in
// the background. It returns after the recent window; the returned Result
// keeps filling until Done is closed. A new LoadAll on the same Loader cancels
// the previous one: a call overtaken before its recent window is done returns
// ErrSuperseded, later on only its background phase stops.
func (l *Loader) LoadAll(ctx context.Context) (*Result, error) {
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	res := newResult(l.currency, cancel)
	l.supersede(res)

	fail := func(err error) (*Result, error) {
		res.Cancel()
		res.finish()
		return nil, err
	}

	l.report(PhaseManifest, 0, 1)
	manifest, err := l.LoadManifest(ctx)
	if err != nil {
		return fail(err)
	}
	res.Manifest = manifest
	l.report(PhaseManifest, 1, 1)

	complete := dataset.CompletePeriods(manifest.MonthsAvailable, l.nowFn())
	if len(complete) == 0 {
		if res.Cancelled() {
			return fail(ErrSuperseded)
		}
		res.finish()
		return res, nil
	}
	loaded := make(map[string]struct{}, len(complete))

	latest := complete[len(complete)-1]
	l.report(PhaseCurrent, 0, 1)
	rec, err := l.LoadMonth(ctx, latest, l.currency)
	if err != nil {
		return fail(err)
	}
	res.put(latest, *rec)
	res.mu.Lock()
	res.latest = latest
	res.mu.Unlock()
	loaded[latest] = struct{}{}
	l.report(PhaseCurrent, 1, 1)

	if len(complete) > 1 {
		previous := complete[len(complete)-2]
		l.report(PhasePrevious, 0, 1)
		rec, err := l.LoadMonth(ctx, previous, l.currency)
		if err != nil {
			return fail(err)
		}
		res.put(previous, *rec)
		loaded[previous] = struct{}{}
		l.report(PhasePrevious, 1, 1)
	}

	windowStart := max(0, len(complete)-l.recentWindow)
	recent := make([]string, 0, len(complete)-windowStart)
	for _, p := range complete[windowStart:] {
		if _, ok := loaded[p]; !ok {
			recent = append(recent, p)
		}
	}
	if len(recent) > 0 {
		total := len(recent)
		count := 0
		l.report(PhaseRecent, 0, total)
		err := l.loadBatches(ctx, recent, l.currency, func(i int, rec dataset.MonthlyRecord) {
			res.put(recent[i], rec)
			count++
			l.report(PhaseRecent, count, total)
		})
		if err != nil {
			return fail(err)
		}
		for _, p := range recent {
			loaded[p] = struct{}{}
		}
	}
	// Records stored after a cancel are dropped, so the map is partial.
	if res.Cancelled() {
		return fail(ErrSuperseded)
	}

	remaining := make([]string, 0, windowStart)
	for _, p := range complete {
		if _, ok := loaded[p]; !ok {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		res.finish()
		return res, nil
	}

	currency := l.currency
	threading.GoSafe(func() {
		l.loadRemaining(bgCtx, res, remaining, currency)
	})
	return res, nil
}

// loadRemaining fetches periods in order, one at a time. Individual failures
// are logged and skipped.
func (l *Loader) loadRemaining(ctx context.Context, res *Result, periods []string, currency string) {
	defer res.finish()
	total := len(periods)
	l.report(PhaseRemaining, 0, total)
	for i, period := range periods {
		if ctx.Err() != nil {
			logx.Infof("loader: background load cancelled currency=%s pending=%d", currency, total-i)
			return
		}
		rec, err := l.LoadMonth(ctx, period, currency)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithContext(ctx).Errorf("loader: background fetch period=%s currency=%s err=%v", period, currency, err)
			continue
		}
		if !res.put(period, *rec) {
			return
		}
		l.report(PhaseRemaining, i+1, total)
	}
}
