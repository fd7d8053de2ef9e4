package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/middleware"
	"sales_ledger_v1/internal/platform"
	"sales_ledger_v1/internal/service"
)

// CredentialController 平台凭据控制器
// 授权页面由外部流程负责，这里只接收结果
type CredentialController struct {
	svc *service.CredentialService
}

// NewCredentialController 创建凭据控制器
func NewCredentialController(svc *service.CredentialService) *CredentialController {
	return &CredentialController{svc: svc}
}

// Register 登记凭据
// POST /api/credentials
func (c *CredentialController) Register(ctx *gin.Context) {
	var req dto.CredentialInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	cred, err := c.svc.Register(ctx.Request.Context(), middleware.GetUserID(ctx), &req)
	if err != nil {
		if errors.Is(err, platform.ErrUnknownPlatform) || errors.Is(err, service.ErrCredentialInput) {
			ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "凭据已登记", "data": cred})
}

// List 当前用户启用中的凭据
// GET /api/credentials
func (c *CredentialController) List(ctx *gin.Context) {
	creds, err := c.svc.ListActive(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "ok", "data": creds})
}

// Deactivate 停用凭据
// DELETE /api/credentials/:id
func (c *CredentialController) Deactivate(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "无效的 ID"})
		return
	}

	if err := c.svc.Deactivate(ctx.Request.Context(), middleware.GetUserID(ctx), id); err != nil {
		if errors.Is(err, service.ErrCredentialNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "凭据不存在"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"code": 200, "message": "凭据已停用"})
}
