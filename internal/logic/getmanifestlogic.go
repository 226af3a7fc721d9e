package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"popreport/internal/svc"
	"popreport/pkg/dataset"
)

type GetManifestLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetManifestLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetManifestLogic {
	return &GetManifestLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetManifestLogic) GetManifest() (*dataset.Manifest, error) {
	return l.svcCtx.Datasets.Manifest(l.ctx)
}
