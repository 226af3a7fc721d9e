package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"popreport/internal/logic"
	"popreport/internal/svc"
)

func CleanupHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewCleanupLogic(r.Context(), svcCtx)
		resp, err := l.Cleanup()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
