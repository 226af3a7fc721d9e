package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/logic"
	"popreport/internal/types"
	"popreport/pkg/dataset"
	"popreport/pkg/dca"
	"popreport/pkg/loader"
)

// ErrorHandler maps domain errors to HTTP statuses. Register it with
// httpx.SetErrorHandlerCtx.
func ErrorHandler(ctx context.Context, err error) (int, any) {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError {
		logx.WithContext(ctx).Errorf("handler: request failed status=%d err=%v", code, err)
	}
	return code, &types.ErrorResponse{Code: code, Message: err.Error()}
}

// StatusOf picks the response status for err.
func StatusOf(err error) int {
	var fe *loader.FetchError
	switch {
	case errors.Is(err, logic.ErrBadRequest),
		errors.Is(err, dca.ErrInvalidInput),
		errors.Is(err, dataset.ErrInvalidCurrency),
		errors.Is(err, dataset.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, logic.ErrNoData), errors.Is(err, loader.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, loader.ErrInvalidShard), errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
