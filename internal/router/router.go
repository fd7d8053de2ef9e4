package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sales_ledger_v1/internal/controller"
	"sales_ledger_v1/internal/middleware"
)

// Controllers 路由依赖
type Controllers struct {
	Sync       *controller.SyncController
	Sales      *controller.SalesController
	Analytics  *controller.AnalyticsController
	Credential *controller.CredentialController

	// 手动同步冷却，0 表示不限
	SyncCooldown time.Duration
	Limiter      *middleware.SyncRateLimiter

	// 健康检查附带的任务状态
	TaskStatus func() map[string]bool
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, c *Controllers) {
	r.GET("/health", func(ctx *gin.Context) {
		data := gin.H{"status": "ok"}
		if c.TaskStatus != nil {
			data["tasks"] = c.TaskStatus()
		}
		ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "ok", "data": data})
	})

	api := r.Group("/api", middleware.JWTAuth())
	{
		// 同步
		sync := api.Group("/sync")
		{
			// POST /api/sync?days_back=7
			sync.POST("", middleware.SyncRateLimit(c.Limiter, c.SyncCooldown), c.Sync.Sync)
			// GET /api/sync/runs
			sync.GET("/runs", c.Sync.ListRuns)
		}

		// 账本
		api.GET("/sales", c.Sales.List)

		// 分析
		analytics := api.Group("/analytics")
		{
			analytics.GET("/trend", c.Analytics.Trend)
			analytics.GET("/platforms", c.Analytics.Platforms)
			analytics.GET("/products", c.Analytics.Products)
			analytics.GET("/customers", c.Analytics.Customers)
		}

		// 凭据（由外部授权流程写入）
		creds := api.Group("/credentials")
		{
			creds.POST("", c.Credential.Register)
			creds.GET("", c.Credential.List)
			creds.DELETE("/:id", c.Credential.Deactivate)
		}
	}
}
