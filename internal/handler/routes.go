package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"popreport/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/manifest",
				Handler: GetManifestHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/months",
				Handler: GetMonthsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/simulate",
				Handler: SimulateHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/storage",
				Handler: StorageHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/reload",
				Handler: ReloadHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/cache/cleanup",
				Handler: CleanupHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api"),
	)
}
