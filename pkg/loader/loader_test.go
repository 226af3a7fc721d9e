package loader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popreport/pkg/cachestore"
	"popreport/pkg/dataset"
	"popreport/pkg/kvstore"
)

var testNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

// shardHost serves a manifest and per-currency shards. Requests for periods in
// gated block until gate is closed.
type shardHost struct {
	server   *httptest.Server
	manifest dataset.Manifest

	mu       sync.Mutex
	shards   map[string]dataset.MonthlyRecord // "USD/2024-01"
	status   map[string]int
	hits     map[string]int
	gated    map[string]bool
	gate     chan struct{}
	delay    time.Duration
	inflight int32
	peak     int32
}

func newShardHost(t *testing.T, periods []string, currencies ...string) *shardHost {
	t.Helper()
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}
	h := &shardHost{
		manifest: dataset.Manifest{
			Version:         "1",
			Asset:           "BTC",
			MonthsAvailable: periods,
			Currencies:      currencies,
			GeneratedAt:     "2024-07-01T00:00:00Z",
		},
		shards: make(map[string]dataset.MonthlyRecord),
		status: make(map[string]int),
		hits:   make(map[string]int),
		gated:  make(map[string]bool),
		gate:   make(chan struct{}),
	}
	for _, cur := range currencies {
		for i, p := range periods {
			h.shards[cur+"/"+p] = testRecord(p, cur, float64(1000+i*10))
		}
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(func() {
		h.release()
		h.server.Close()
	})
	return h
}

func testRecord(period, currency string, price float64) dataset.MonthlyRecord {
	return dataset.MonthlyRecord{
		Month:      period,
		Currency:   currency,
		EntryDate:  period + "-01",
		EntryPrice: price,
		DaysTotal:  30,
		Regime:     dataset.RegimeNA,
	}
}

func (h *shardHost) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.gate:
	default:
		close(h.gate)
	}
}

func (h *shardHost) hitCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *shardHost) setStatus(path string, code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[path] = code
}

func (h *shardHost) gatePeriods(periods ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range periods {
		h.gated[p] = true
	}
}

func (h *shardHost) serve(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&h.inflight, 1)
	defer atomic.AddInt32(&h.inflight, -1)
	for {
		peak := atomic.LoadInt32(&h.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&h.peak, peak, n) {
			break
		}
	}

	path := r.URL.Path
	h.mu.Lock()
	h.hits[path]++
	code := h.status[path]
	delay := h.delay
	gate := h.gate
	period := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".json")
	gated := h.gated[period]
	h.mu.Unlock()

	if gated {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case path == "/data/manifest.v1.json":
		_ = json.NewEncoder(w).Encode(h.manifest)
	case strings.HasPrefix(path, "/data/monthly/"):
		key := strings.TrimSuffix(strings.TrimPrefix(path, "/data/monthly/"), ".json")
		h.mu.Lock()
		rec, ok := h.shards[key]
		h.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	default:
		http.NotFound(w, r)
	}
}

func periodRange(from string, n int) []string {
	start, err := time.Parse("2006-01", from)
	if err != nil {
		panic(err)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = start.AddDate(0, i, 0).Format("2006-01")
	}
	return out
}

func newTestLoader(t *testing.T, h *shardHost, opts ...Option) (*Loader, *cachestore.Store) {
	t.Helper()
	client, err := NewClient(h.server.URL+"/data", WithMaxRetries(0))
	require.NoError(t, err)
	cache := cachestore.New(kvstore.NewMemoryStore(0))
	base := []Option{WithClock(func() time.Time { return testNow })}
	l, err := New(client, cache, append(base, opts...)...)
	require.NoError(t, err)
	return l, cache
}

type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (p *progressLog) record(ev Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressLog) snapshot() []Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Progress(nil), p.events...)
}

func (p *progressLog) last(phase Phase) (Progress, bool) {
	events := p.snapshot()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Phase == phase {
			return events[i], true
		}
	}
	return Progress{}, false
}

func TestNewRejectsInvalidCurrency(t *testing.T) {
	client, err := NewClient("https://example.com/data")
	require.NoError(t, err)

	_, err = New(client, nil, WithCurrency("dollars"))
	require.ErrorIs(t, err, dataset.ErrInvalidCurrency)

	l, err := New(client, nil, WithCurrency(" eur "))
	require.NoError(t, err)
	assert.Equal(t, "EUR", l.Currency())
}

func TestLoadManifestIsCacheFirst(t *testing.T) {
	h := newShardHost(t, periodRange("2024-01", 3))
	l, cache := newTestLoader(t, h)
	ctx := context.Background()

	first, err := l.LoadManifest(ctx)
	require.NoError(t, err)
	second, err := l.LoadManifest(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.hitCount("/data/manifest.v1.json"))

	var cached dataset.Manifest
	hit, err := cache.Get(ctx, cachestore.ManifestKey, &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, h.manifest.MonthsAvailable, cached.MonthsAvailable)
}

func TestLoadManifestFailure(t *testing.T) {
	h := newShardHost(t, periodRange("2024-01", 3))
	h.setStatus("/data/manifest.v1.json", http.StatusInternalServerError)
	l, _ := newTestLoader(t, h)

	_, err := l.LoadManifest(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
}

func TestLoadMonthNormalisesIdentifiers(t *testing.T) {
	h := newShardHost(t, periodRange("2024-01", 3))
	l, cache := newTestLoader(t, h)
	ctx := context.Background()

	rec, err := l.LoadMonth(ctx, " 2024-02 ", "usd")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", rec.Month)

	again, err := l.LoadMonth(ctx, "2024-02", "USD")
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, 1, h.hitCount("/data/monthly/USD/2024-02.json"))

	hit, err := cache.Get(ctx, cachestore.DataKey("USD", "2024-02"), nil)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestLoadMonthErrors(t *testing.T) {
	h := newShardHost(t, periodRange("2024-01", 3))
	l, _ := newTestLoader(t, h)
	ctx := context.Background()

	tests := []struct {
		name     string
		period   string
		currency string
		setup    func()
		wantErr  error
	}{
		{name: "bad period", period: "2024-13", currency: "USD", wantErr: dataset.ErrInvalidPeriod},
		{name: "bad currency", period: "2024-01", currency: "US", wantErr: dataset.ErrInvalidCurrency},
		{name: "missing shard", period: "2023-06", currency: "USD", wantErr: ErrNotFound},
		{
			name: "mismatched payload", period: "2024-03", currency: "USD", wantErr: ErrInvalidShard,
			setup: func() {
				h.mu.Lock()
				h.shards["USD/2024-03"] = testRecord("2024-02", "USD", 1)
				h.mu.Unlock()
			},
		},
		{
			name: "invalid payload", period: "2024-01", currency: "USD", wantErr: ErrInvalidShard,
			setup: func() {
				h.mu.Lock()
				rec := testRecord("2024-01", "USD", 1)
				rec.DaysPositive, rec.DaysNegative = 20, 20
				h.shards["USD/2024-01"] = rec
				h.mu.Unlock()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := l.LoadMonth(ctx, tt.period, tt.currency)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLoadMonthsBoundsConcurrency(t *testing.T) {
	periods := periodRange("2023-01", 7)
	h := newShardHost(t, periods)
	h.mu.Lock()
	h.delay = 20 * time.Millisecond
	h.mu.Unlock()
	l, _ := newTestLoader(t, h, WithMaxConcurrent(3))

	records, err := l.LoadMonths(context.Background(), periods, "USD")
	require.NoError(t, err)
	require.Len(t, records, len(periods))
	for i, rec := range records {
		assert.Equal(t, periods[i], rec.Month)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&h.peak), int32(3))
}

func TestLoadMonthsFailsWholeCall(t *testing.T) {
	periods := periodRange("2023-01", 5)
	h := newShardHost(t, periods)
	h.setStatus("/data/monthly/USD/2023-04.json", http.StatusNotFound)
	l, _ := newTestLoader(t, h, WithMaxConcurrent(2))

	records, err := l.LoadMonths(context.Background(), periods, "USD")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, records)
	assert.Zero(t, h.hitCount("/data/monthly/USD/2023-05.json"), "later batches must not start")
}

func TestLoadAllPhases(t *testing.T) {
	// 2023-01..2024-07; 2024-07 is the in-progress period.
	periods := periodRange("2023-01", 19)
	h := newShardHost(t, periods)
	h.gatePeriods(periods[:12]...)

	var progress progressLog
	l, _ := newTestLoader(t, h, WithRecentWindow(6), WithProgress(progress.record))
	ctx := context.Background()

	res, err := l.LoadAll(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Manifest)

	assert.Equal(t, 6, res.Len())
	assert.False(t, res.Complete())
	assert.Equal(t, "2024-06", res.Latest())
	for _, p := range periods[12:18] {
		_, ok := res.Month(p)
		assert.True(t, ok, p)
	}
	assert.Zero(t, h.hitCount("/data/monthly/USD/2024-07.json"), "in-progress period is never requested")

	events := progress.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, Progress{Phase: PhaseManifest, Loaded: 0, Total: 1}, events[0])
	cur, ok := progress.last(PhaseCurrent)
	require.True(t, ok)
	assert.Equal(t, Progress{Phase: PhaseCurrent, Loaded: 1, Total: 1, Percentage: 100}, cur)
	prev, ok := progress.last(PhasePrevious)
	require.True(t, ok)
	assert.Equal(t, 1, prev.Loaded)
	recent, ok := progress.last(PhaseRecent)
	require.True(t, ok)
	assert.Equal(t, Progress{Phase: PhaseRecent, Loaded: 4, Total: 4, Percentage: 100}, recent)

	h.release()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, res.Wait(waitCtx))

	assert.True(t, res.Complete())
	assert.Equal(t, 18, res.Len())
	records := res.Records()
	assert.Equal(t, "2023-01", records[0].Month)
	assert.Equal(t, "2024-06", records[len(records)-1].Month)
	remaining, ok := progress.last(PhaseRemaining)
	require.True(t, ok)
	assert.Equal(t, Progress{Phase: PhaseRemaining, Loaded: 12, Total: 12, Percentage: 100}, remaining)
}

func TestLoadAllBackgroundFailureIsIsolated(t *testing.T) {
	periods := periodRange("2023-01", 19)
	h := newShardHost(t, periods)
	h.setStatus("/data/monthly/USD/2023-03.json", http.StatusInternalServerError)
	l, _ := newTestLoader(t, h, WithRecentWindow(6))
	ctx := context.Background()

	res, err := l.LoadAll(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, res.Wait(waitCtx))

	assert.Equal(t, 17, res.Len())
	_, ok := res.Month("2023-03")
	assert.False(t, ok)
	_, ok = res.Month("2023-04")
	assert.True(t, ok)
}

func TestLoadAllForegroundFailureIsFatal(t *testing.T) {
	periods := periodRange("2023-01", 19)

	tests := []struct {
		name string
		path string
	}{
		{name: "manifest", path: "/data/manifest.v1.json"},
		{name: "latest", path: "/data/monthly/USD/2024-06.json"},
		{name: "previous", path: "/data/monthly/USD/2024-05.json"},
		{name: "recent", path: "/data/monthly/USD/2024-01.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newShardHost(t, periods)
			h.setStatus(tt.path, http.StatusNotFound)
			l, _ := newTestLoader(t, h, WithRecentWindow(6))

			res, err := l.LoadAll(context.Background())
			require.Error(t, err)
			assert.Nil(t, res)
		})
	}
}

func TestLoadAllSupersedeCancelsBackground(t *testing.T) {
	periods := periodRange("2023-01", 19)
	h := newShardHost(t, periods)
	h.gatePeriods(periods[:12]...)
	l, _ := newTestLoader(t, h, WithRecentWindow(6))
	ctx := context.Background()

	first, err := l.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, first.Len())

	second, err := l.LoadAll(ctx)
	require.NoError(t, err)
	assert.True(t, first.Cancelled())
	assert.False(t, second.Cancelled())

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, first.Wait(waitCtx))
	h.release()
	require.NoError(t, second.Wait(waitCtx))

	assert.Equal(t, 6, first.Len(), "a superseded result must not grow")
	assert.Equal(t, 18, second.Len())
}

func TestLoadAllOvertakenInForeground(t *testing.T) {
	periods := periodRange("2024-01", 7)
	h := newShardHost(t, periods)

	var l *Loader
	cancelAfterLatest := func(p Progress) {
		if p.Phase == PhaseCurrent && p.Loaded == 1 {
			l.Cancel()
		}
	}
	l, _ = newTestLoader(t, h, WithProgress(cancelAfterLatest))

	res, err := l.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Nil(t, res)
}

func TestLoadAllWithoutCompletePeriods(t *testing.T) {
	h := newShardHost(t, []string{"2024-07"})
	l, _ := newTestLoader(t, h)

	res, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Len())
	assert.True(t, res.Complete())
	assert.Equal(t, []string{cachestore.ManifestKey}, res.ProtectedKeys())
}

func TestLoadAllSinglePeriod(t *testing.T) {
	h := newShardHost(t, []string{"2024-06", "2024-07"})
	var progress progressLog
	l, _ := newTestLoader(t, h, WithProgress(progress.record))

	res, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	assert.True(t, res.Complete())
	_, ok := progress.last(PhasePrevious)
	assert.False(t, ok)
	assert.Equal(t, []string{cachestore.ManifestKey, cachestore.DataKey("USD", "2024-06")}, res.ProtectedKeys())
}

func TestPrefetchCurrency(t *testing.T) {
	periods := periodRange("2024-01", 4)
	h := newShardHost(t, periods, "USD", "EUR")
	h.setStatus("/data/monthly/EUR/2024-02.json", http.StatusNotFound)
	l, cache := newTestLoader(t, h)
	ctx := context.Background()

	loaded := l.PrefetchCurrency(ctx, "eur", periods)
	assert.Equal(t, 3, loaded)
	for _, p := range []string{"2024-01", "2024-03", "2024-04"} {
		hit, err := cache.Get(ctx, cachestore.DataKey("EUR", p), nil)
		require.NoError(t, err)
		assert.True(t, hit, p)
	}
}

func TestClearCache(t *testing.T) {
	h := newShardHost(t, periodRange("2024-01", 2))
	l, cache := newTestLoader(t, h)
	ctx := context.Background()

	_, err := l.LoadManifest(ctx)
	require.NoError(t, err)
	_, err = l.LoadMonth(ctx, "2024-01", "USD")
	require.NoError(t, err)

	require.NoError(t, l.ClearCache(ctx))
	info, err := cache.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Usage)

	_, err = l.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.hitCount("/data/manifest.v1.json"))
}

func TestForCurrencySharesCache(t *testing.T) {
	periods := periodRange("2024-01", 3)
	h := newShardHost(t, periods, "USD", "BRL")
	l, _ := newTestLoader(t, h)

	brl, err := l.ForCurrency("brl")
	require.NoError(t, err)
	assert.Equal(t, "BRL", brl.Currency())

	ctx := context.Background()
	_, err = l.LoadManifest(ctx)
	require.NoError(t, err)
	res, err := brl.LoadAll(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Wait(ctx))
	assert.Equal(t, 1, h.hitCount("/data/manifest.v1.json"))
	for _, rec := range res.Records() {
		assert.Equal(t, "BRL", rec.Currency)
	}
}
