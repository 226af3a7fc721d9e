package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/internal/types"
)

type GetMonthsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetMonthsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetMonthsLogic {
	return &GetMonthsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// GetMonths returns what the current load holds so far. Months keep arriving
// until Complete is true.
func (l *GetMonthsLogic) GetMonths(req *types.CurrencyRequest) (*types.MonthsResponse, error) {
	res, err := l.svcCtx.Datasets.Dataset(l.ctx, req.Currency)
	if err != nil {
		return nil, err
	}
	return &types.MonthsResponse{
		Currency: res.Currency,
		Complete: res.Complete(),
		Latest:   res.Latest(),
		Months:   res.Records(),
	}, nil
}
