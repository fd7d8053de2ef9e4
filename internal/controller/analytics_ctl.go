package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/middleware"
	"sales_ledger_v1/internal/service"
)

// AnalyticsController 分析控制器，只读
type AnalyticsController struct {
	svc *service.AnalyticsService
}

// NewAnalyticsController 创建分析控制器
func NewAnalyticsController(svc *service.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{svc: svc}
}

// window 解析统计窗口，失败时已写出 400
func (c *AnalyticsController) window(ctx *gin.Context) (dto.AnalyticsQuery, service.Window, bool) {
	var q dto.AnalyticsQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return q, service.Window{}, false
	}
	w, err := c.svc.ResolveWindow(q)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return q, w, false
	}
	return q, w, true
}

func (c *AnalyticsController) respond(ctx *gin.Context, data any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidWindow) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"code": status, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "ok", "data": data})
}

// Trend 收入趋势
// GET /api/analytics/trend?start_date=&end_date=&days=
func (c *AnalyticsController) Trend(ctx *gin.Context) {
	_, w, ok := c.window(ctx)
	if !ok {
		return
	}
	resp, err := c.svc.Trend(ctx.Request.Context(), middleware.GetUserID(ctx), w)
	c.respond(ctx, resp, err)
}

// Platforms 平台分布
// GET /api/analytics/platforms
func (c *AnalyticsController) Platforms(ctx *gin.Context) {
	_, w, ok := c.window(ctx)
	if !ok {
		return
	}
	resp, err := c.svc.Platforms(ctx.Request.Context(), middleware.GetUserID(ctx), w)
	c.respond(ctx, resp, err)
}

// Products 热销商品
// GET /api/analytics/products?limit=
func (c *AnalyticsController) Products(ctx *gin.Context) {
	q, w, ok := c.window(ctx)
	if !ok {
		return
	}
	resp, err := c.svc.TopProducts(ctx.Request.Context(), middleware.GetUserID(ctx), w, q.Limit)
	c.respond(ctx, resp, err)
}

// Customers 客户分层
// GET /api/analytics/customers
func (c *AnalyticsController) Customers(ctx *gin.Context) {
	_, w, ok := c.window(ctx)
	if !ok {
		return
	}
	resp, err := c.svc.Customers(ctx.Request.Context(), middleware.GetUserID(ctx), w)
	c.respond(ctx, resp, err)
}
