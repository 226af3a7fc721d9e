package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/pkg/kvstore"
)

const (
	defaultMaxUsagePercent = 85.0
	defaultFallbackQuota   = 5_000_000 // bytes, typical browser local storage budget
	cleanupBatchSize       = 5
	cleanupHeadroomPercent = 10.0
)

// Entry is the persisted wrapper around every cached payload. Times are Unix
// milliseconds.
type Entry struct {
	Data         json.RawMessage `json:"data"`
	Timestamp    int64           `json:"timestamp"`
	AccessCount  int64           `json:"accessCount"`
	LastAccessed int64           `json:"lastAccessed"`
}

// StorageInfo reports usage against quota.
type StorageInfo struct {
	Usage        int64   `json:"usage"`
	Quota        int64   `json:"quota"`
	UsagePercent float64 `json:"usagePercent"`
}

// Store is a namespaced cache with access metadata and LRU eviction on top of
// a kvstore.Store backend.
type Store struct {
	kv              kvstore.Store
	namespace       string
	maxUsagePercent float64
	fallbackQuota   int64
	nowFn           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithVersion selects the "btcReport:v{N}" namespace.
func WithVersion(version int) Option {
	return func(s *Store) {
		s.namespace = Namespace(version)
	}
}

// WithMaxUsagePercent sets the cleanup threshold.
func WithMaxUsagePercent(pct float64) Option {
	return func(s *Store) {
		if pct > 0 {
			s.maxUsagePercent = pct
		}
	}
}

// WithFallbackQuota sets the quota used when the backend cannot estimate its own.
func WithFallbackQuota(bytes int64) Option {
	return func(s *Store) {
		if bytes > 0 {
			s.fallbackQuota = bytes
		}
	}
}

// WithClock overrides the time source used for entry metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New constructs a Store over kv.
func New(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{
		kv:              kv,
		namespace:       Namespace(1),
		maxUsagePercent: defaultMaxUsagePercent,
		fallbackQuota:   defaultFallbackQuota,
		nowFn:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the prefix applied to every key.
func (s *Store) Namespace() string { return s.namespace }

// MaxUsagePercent returns the cleanup threshold.
func (s *Store) MaxUsagePercent() float64 { return s.maxUsagePercent }

func (s *Store) fullKey(key string) string {
	return s.namespace + ":" + key
}

func (s *Store) prefix() string {
	return s.namespace + ":"
}

// Set wraps data in a fresh entry and persists it. When the backend reports
// the quota is exceeded, one unprotected entry is evicted and the write is
// retried once.
func (s *Store) Set(ctx context.Context, key string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cachestore: encode %s: %w", key, err)
	}
	now := s.nowFn().UnixMilli()
	raw, err := json.Marshal(Entry{
		Data:         payload,
		Timestamp:    now,
		AccessCount:  0,
		LastAccessed: now,
	})
	if err != nil {
		return fmt.Errorf("cachestore: encode entry %s: %w", key, err)
	}

	full := s.fullKey(key)
	err = s.kv.Set(ctx, full, string(raw))
	if errors.Is(err, kvstore.ErrQuotaExceeded) {
		evicted, evictErr := s.EvictLRU(ctx, []string{key}, 1)
		if evictErr != nil {
			return fmt.Errorf("cachestore: evict for %s: %w", key, evictErr)
		}
		logx.WithContext(ctx).Infof("cachestore: quota exceeded key=%s evicted=%d, retrying", key, evicted)
		err = s.kv.Set(ctx, full, string(raw))
	}
	if err != nil {
		return fmt.Errorf("cachestore: set %s: %w", key, err)
	}
	return nil
}

// Get decodes the payload stored under key into v and records the access.
// It reports false on a miss. Entries that cannot be parsed, or whose payload
// does not decode into v, are removed and reported as a miss.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	full := s.fullKey(key)
	raw, ok, err := s.kv.Get(ctx, full)
	if err != nil {
		return false, fmt.Errorf("cachestore: get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || len(entry.Data) == 0 {
		s.drop(ctx, key, full)
		return false, nil
	}
	if v != nil {
		if err := json.Unmarshal(entry.Data, v); err != nil {
			s.drop(ctx, key, full)
			return false, nil
		}
	}

	entry.AccessCount++
	if now := s.nowFn().UnixMilli(); now > entry.LastAccessed {
		entry.LastAccessed = now
	}
	if updated, err := json.Marshal(entry); err == nil {
		if err := s.kv.Set(ctx, full, string(updated)); err != nil {
			logx.WithContext(ctx).Errorf("cachestore: write back metadata key=%s err=%v", key, err)
		}
	}
	return true, nil
}

func (s *Store) drop(ctx context.Context, key, full string) {
	if err := s.kv.Remove(ctx, full); err != nil {
		logx.WithContext(ctx).Errorf("cachestore: drop corrupted key=%s err=%v", key, err)
	}
}

// Remove deletes one entry. Missing keys are ignored.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.kv.Remove(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("cachestore: remove %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry under this store's namespace and nothing else.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.namespacedKeys(ctx)
	if err != nil {
		return err
	}
	for _, full := range keys {
		if err := s.kv.Remove(ctx, full); err != nil {
			return fmt.Errorf("cachestore: clear %s: %w", full, err)
		}
	}
	return nil
}

// StorageInfo prefers the backend's own estimate; otherwise usage is the byte
// length of every namespaced key and value against the fallback quota.
func (s *Store) StorageInfo(ctx context.Context) (StorageInfo, error) {
	if est, ok := s.kv.(kvstore.Estimator); ok {
		e, err := est.Estimate(ctx)
		if err != nil {
			return StorageInfo{}, fmt.Errorf("cachestore: estimate: %w", err)
		}
		quota := e.Quota
		if quota <= 0 {
			quota = s.fallbackQuota
		}
		return newStorageInfo(e.Usage, quota), nil
	}

	keys, err := s.namespacedKeys(ctx)
	if err != nil {
		return StorageInfo{}, err
	}
	var usage int64
	for _, full := range keys {
		v, ok, err := s.kv.Get(ctx, full)
		if err != nil {
			return StorageInfo{}, fmt.Errorf("cachestore: size %s: %w", full, err)
		}
		if ok {
			usage += int64(len(full) + len(v))
		}
	}
	return newStorageInfo(usage, s.fallbackQuota), nil
}

func newStorageInfo(usage, quota int64) StorageInfo {
	info := StorageInfo{Usage: usage, Quota: quota}
	if quota > 0 {
		info.UsagePercent = float64(usage) / float64(quota) * 100
	}
	return info
}

type candidate struct {
	full  string
	entry Entry
}

// EvictLRU removes up to count unprotected entries, least recently accessed
// first, then lowest access count, then oldest. protected holds unprefixed
// keys. It returns the number actually removed.
func (s *Store) EvictLRU(ctx context.Context, protected []string, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	skip := make(map[string]struct{}, len(protected))
	for _, k := range protected {
		skip[k] = struct{}{}
	}

	keys, err := s.namespacedKeys(ctx)
	if err != nil {
		return 0, err
	}
	prefix := s.prefix()
	items := make([]candidate, 0, len(keys))
	for _, full := range keys {
		if _, ok := skip[strings.TrimPrefix(full, prefix)]; ok {
			continue
		}
		raw, ok, err := s.kv.Get(ctx, full)
		if err != nil {
			return 0, fmt.Errorf("cachestore: scan %s: %w", full, err)
		}
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			if rmErr := s.kv.Remove(ctx, full); rmErr != nil {
				logx.WithContext(ctx).Errorf("cachestore: drop corrupted key=%s err=%v", full, rmErr)
			}
			continue
		}
		items = append(items, candidate{full: full, entry: entry})
	}
	if len(items) == 0 {
		return 0, nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].entry, items[j].entry
		if a.LastAccessed != b.LastAccessed {
			return a.LastAccessed < b.LastAccessed
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount
		}
		return a.Timestamp < b.Timestamp
	})

	n := min(count, len(items))
	for i := 0; i < n; i++ {
		if err := s.kv.Remove(ctx, items[i].full); err != nil {
			return i, fmt.Errorf("cachestore: evict %s: %w", items[i].full, err)
		}
	}
	return n, nil
}

// CleanupIfNeeded evicts batches of unprotected entries once usage reaches the
// threshold, stopping when usage falls to the threshold minus ten points or
// nothing evictable remains. It returns the number of entries evicted.
func (s *Store) CleanupIfNeeded(ctx context.Context, protected []string) (int, error) {
	info, err := s.StorageInfo(ctx)
	if err != nil {
		return 0, err
	}
	if info.UsagePercent < s.maxUsagePercent {
		return 0, nil
	}

	target := s.maxUsagePercent - cleanupHeadroomPercent
	total := 0
	for info.UsagePercent > target {
		evicted, err := s.EvictLRU(ctx, protected, cleanupBatchSize)
		total += evicted
		if err != nil {
			return total, err
		}
		if evicted == 0 {
			break
		}
		if info, err = s.StorageInfo(ctx); err != nil {
			return total, err
		}
	}
	logx.WithContext(ctx).Infof("cachestore: cleanup evicted=%d usage=%.1f%% target=%.1f%%", total, info.UsagePercent, target)
	return total, nil
}

func (s *Store) namespacedKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("cachestore: list keys: %w", err)
	}
	prefix := s.prefix()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
