package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/middleware"
	"sales_ledger_v1/internal/service"
)

// SalesController 销售账本控制器
type SalesController struct {
	svc *service.SaleService
}

// NewSalesController 创建账本控制器
func NewSalesController(svc *service.SaleService) *SalesController {
	return &SalesController{svc: svc}
}

// List 销售明细列表
// GET /api/sales?platform=&status=&start_date=&end_date=&keyword=&page=&page_size=
func (c *SalesController) List(ctx *gin.Context) {
	var req dto.ListSalesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	resp, err := c.svc.List(ctx.Request.Context(), middleware.GetUserID(ctx), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuery) {
			ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "ok",
		"data":    resp,
	})
}
