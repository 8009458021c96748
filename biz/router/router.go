package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/jaskirat05/graviton-bridge/biz/handler"
	"github.com/jaskirat05/graviton-bridge/biz/middleware"
)

// Register configures the bridge HTTP routes.
func Register(r *server.Hertz, h *handler.BridgeHandler) {
	if h == nil {
		return
	}

	bridge := r.Group("/graviton-bridge")

	assets := bridge.Group("/assets")
	assets.GET("", h.ListAssets)
	assets.POST("/upload", h.UploadAsset)
	assets.GET("/:asset_id/meta", h.GetAssetMeta)
	assets.GET("/:asset_id", h.DownloadAsset)

	bridge.GET("/config", h.GetConfig)
	// Config mutations are signed and serialized.
	bridge.POST("/config",
		middleware.ControlAuth(h.Verifier()),
		middleware.WriteLockMw(),
		h.PostConfig)
	bridge.GET("/control/status", h.ControlStatus)

	bridge.GET("/templates", h.ListTemplates)
	bridge.GET("/templates/download/:filename", h.DownloadTemplate)
	bridge.POST("/templates/upload", h.UploadTemplate)

	bridge.GET("/ledger", h.ListLedger)

	r.GET("/ping", handler.Ping)
}
