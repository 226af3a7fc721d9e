package logic

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/internal/types"
	"popreport/pkg/dca"
)

type SimulateLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSimulateLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SimulateLogic {
	return &SimulateLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Simulate runs the contribution simulation over the months loaded so far.
// Complete in the response tells whether older months may still be missing.
func (l *SimulateLogic) Simulate(req *types.SimulateRequest) (*types.SimulateResponse, error) {
	res, err := l.svcCtx.Datasets.Dataset(l.ctx, req.Currency)
	if err != nil {
		return nil, err
	}
	series := BuildSeries(res.Records(), req.IncludeExit)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: currency %s", ErrNoData, res.Currency)
	}

	result, err := dca.Simulate(series, req.StartDate, req.Amount)
	if err != nil {
		return nil, err
	}
	resp := &types.SimulateResponse{
		Currency: res.Currency,
		Complete: res.Complete(),
		Points:   len(series),
		Result:   result,
	}
	if resp.CostBasis, err = result.CostBasis(); err != nil {
		return nil, err
	}

	if req.Details {
		entries, totals, err := dca.Breakdown(series, req.StartDate, req.Amount)
		if err != nil {
			return nil, err
		}
		resp.Breakdown = entries
		resp.Totals = &totals
	} else {
		resp.Result.Purchases = nil
	}
	l.Infof("simulate currency=%s start=%s points=%d contributions=%d", res.Currency, result.StartDate, len(series), result.Contributions)
	return resp, nil
}
