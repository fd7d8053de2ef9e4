package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/middleware"
	"sales_ledger_v1/internal/task"
)

// SyncTrigger 手动同步入口，由 task.TaskManager 实现
type SyncTrigger interface {
	TriggerSync(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error)
}

// RunHistory 同步记录查询，由 service.SyncService 实现
type RunHistory interface {
	ListRuns(ctx context.Context, userID int64, req *dto.ListSyncRunsRequest) ([]dto.SyncRunItem, error)
}

// SyncController 同步控制器
type SyncController struct {
	trigger SyncTrigger
	history RunHistory
	logger  *zap.Logger
}

// NewSyncController 创建同步控制器
func NewSyncController(trigger SyncTrigger, history RunHistory, log *zap.Logger) *SyncController {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncController{trigger: trigger, history: history, logger: log.Named("sync_ctl")}
}

// ==================== Handler 实现 ====================

// Sync 同步当前用户的全部平台
// POST /api/sync?days_back=N
// 单个平台失败不影响整体 200，失败原因在 results 中
func (c *SyncController) Sync(ctx *gin.Context) {
	var req dto.SyncRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "days_back 参数错误"})
		return
	}
	if req.DaysBack < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "days_back 不能为负数"})
		return
	}

	userID := middleware.GetUserID(ctx)
	resp, err := c.trigger.TriggerSync(ctx.Request.Context(), userID, req.DaysBack)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrSyncBusy):
			ctx.JSON(http.StatusConflict, gin.H{"code": 409, "message": "同步进行中，请稍后再试"})
		case errors.Is(err, task.ErrTaskDisabled):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "message": "同步功能未启用"})
		default:
			c.logger.Error("[SyncController] 同步失败", zap.Int64("user_id", userID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "同步失败: " + err.Error()})
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": resp.Message,
		"data":    resp,
	})
}

// ListRuns 同步记录
// GET /api/sync/runs?platform=&batch_id=&limit=
func (c *SyncController) ListRuns(ctx *gin.Context) {
	var req dto.ListSyncRunsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": err.Error()})
		return
	}

	runs, err := c.history.ListRuns(ctx.Request.Context(), middleware.GetUserID(ctx), &req)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "ok",
		"data":    runs,
	})
}
