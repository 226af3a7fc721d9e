package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"popreport/internal/logic"
	"popreport/internal/svc"
	"popreport/internal/types"
)

func SimulateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SimulateRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, logic.BadRequest(err))
			return
		}

		l := logic.NewSimulateLogic(r.Context(), svcCtx)
		resp, err := l.Simulate(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
