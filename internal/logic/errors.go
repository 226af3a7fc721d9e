package logic

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest marks malformed request parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrNoData is returned when a dataset has no complete periods to work on.
	ErrNoData = errors.New("no data available")
)

// BadRequest wraps a parse failure so it maps to ErrBadRequest.
func BadRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}
