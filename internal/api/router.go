package api

import (
	"ContractSync/internal/metrics"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
)

// NewRouter 注册同步接口、指标与 pprof
func NewRouter(h *SyncHandler, reg *metrics.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 注册ppof 方便调试和监测性能问题
	pprof.Register(r)

	r.POST("/sync/run", h.RunHandler)
	r.GET("/sync/status", h.StatusHandler)
	r.POST("/sync/suppliers", h.SuppliersHandler)
	r.POST("/sync/amendments", h.AmendmentsHandler)
	r.GET("/metrics", gin.WrapH(reg.Handler()))
	return r
}
