package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by FetchError when the host has no such shard.
	ErrNotFound = errors.New("loader: not found")
	// ErrInvalidShard indicates a shard decoded but failed validation.
	ErrInvalidShard = errors.New("loader: invalid shard")
	// ErrSuperseded is returned by a LoadAll cancelled by a newer one or by
	// Cancel before its foreground phases finished.
	ErrSuperseded = errors.New("loader: load superseded")
)

// FetchError reports a transport failure or a non-success HTTP response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("loader: fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("loader: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
