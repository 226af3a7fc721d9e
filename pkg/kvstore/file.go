package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ Store     = (*FileStore)(nil)
	_ Estimator = (*FileStore)(nil)
)

// FileStore is a durable store that keeps every value in memory and rewrites a
// msgpack snapshot of the whole map after each mutation, so the contents
// survive process restarts.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	data  map[string]string
	usage int64
	quota int64
}

// OpenFileStore loads the snapshot at path, creating an empty store when the
// file does not exist yet. quota <= 0 disables the limit.
func OpenFileStore(path string, quota int64) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("kvstore: file store path is required")
	}
	fs := &FileStore{path: path, data: make(map[string]string), quota: quota}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("kvstore: read snapshot %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := msgpack.Unmarshal(raw, &fs.data); err != nil {
			return nil, fmt.Errorf("kvstore: decode snapshot %s: %w", path, err)
		}
	}
	for k, v := range fs.data {
		fs.usage += entrySize(k, v)
	}
	return fs, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.usage + entrySize(key, value)
	old, existed := f.data[key]
	if existed {
		next -= entrySize(key, old)
	}
	if f.quota > 0 && next > f.quota {
		return ErrQuotaExceeded
	}
	f.data[key] = value
	if err := f.flushLocked(); err != nil {
		if existed {
			f.data[key] = old
		} else {
			delete(f.data, key)
		}
		return err
	}
	f.usage = next
	return nil
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.data[key]
	if !ok {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = old
		return err
	}
	f.usage -= entrySize(key, old)
	return nil
}

func (f *FileStore) Keys(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) Estimate(_ context.Context) (Estimate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Estimate{Usage: f.usage, Quota: f.quota}, nil
}

// flushLocked writes the snapshot to a temp file and renames it into place.
func (f *FileStore) flushLocked() error {
	payload, err := msgpack.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("kvstore: encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("kvstore: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: replace snapshot: %w", err)
	}
	return nil
}
