package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"popreport/internal/logic"
	"popreport/internal/svc"
	"popreport/internal/types"
)

func GetMonthsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CurrencyRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, logic.BadRequest(err))
			return
		}

		l := logic.NewGetMonthsLogic(r.Context(), svcCtx)
		resp, err := l.GetMonths(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
