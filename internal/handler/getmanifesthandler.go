package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"popreport/internal/logic"
	"popreport/internal/svc"
)

func GetManifestHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewGetManifestLogic(r.Context(), svcCtx)
		resp, err := l.GetManifest()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
