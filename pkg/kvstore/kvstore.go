package kvstore

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by backends that reject a write because the
// storage quota would be exceeded.
var ErrQuotaExceeded = errors.New("kvstore: quota exceeded")

// Store is the minimal string key/value capability the cache is built on.
type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists every key currently held by the backend.
	Keys(ctx context.Context) ([]string, error)
}

// Estimate reports backend-wide usage against its quota, in bytes.
type Estimate struct {
	Usage int64
	Quota int64
}

// Estimator is implemented by backends able to report their own usage.
type Estimator interface {
	Estimate(ctx context.Context) (Estimate, error)
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
