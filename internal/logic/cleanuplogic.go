package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/internal/types"
)

type CleanupLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCleanupLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CleanupLogic {
	return &CleanupLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Cleanup evicts least recently used entries when usage is above the
// threshold. The manifest and the latest period of every loaded currency are
// kept.
func (l *CleanupLogic) Cleanup() (*types.CleanupResponse, error) {
	evicted, err := l.svcCtx.Cache.CleanupIfNeeded(l.ctx, l.svcCtx.Datasets.ProtectedKeys())
	if err != nil {
		return nil, err
	}
	storage, err := NewStorageLogic(l.ctx, l.svcCtx).Storage()
	if err != nil {
		return nil, err
	}
	return &types.CleanupResponse{Evicted: evicted, Storage: *storage}, nil
}
