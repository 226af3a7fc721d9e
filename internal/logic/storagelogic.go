package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/internal/types"
)

type StorageLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewStorageLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StorageLogic {
	return &StorageLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *StorageLogic) Storage() (*types.StorageResponse, error) {
	info, err := l.svcCtx.Cache.StorageInfo(l.ctx)
	if err != nil {
		return nil, err
	}
	return &types.StorageResponse{
		Namespace:    l.svcCtx.Cache.Namespace(),
		Usage:        info.Usage,
		Quota:        info.Quota,
		UsagePercent: info.UsagePercent,
	}, nil
}
