package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/internal/types"
)

type ReloadLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewReloadLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ReloadLogic {
	return &ReloadLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Reload starts a fresh load and returns once its foreground phases are done.
func (l *ReloadLogic) Reload(req *types.CurrencyRequest) (*types.ReloadResponse, error) {
	res, err := l.svcCtx.Datasets.Reload(l.ctx, req.Currency)
	if err != nil {
		return nil, err
	}
	l.Infof("reload currency=%s loaded=%d latest=%s", res.Currency, res.Len(), res.Latest())
	return &types.ReloadResponse{
		Currency: res.Currency,
		Loaded:   res.Len(),
		Latest:   res.Latest(),
	}, nil
}
