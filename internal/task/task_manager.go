package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sales_ledger_v1/internal/api/dto"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理定时同步与 Token 保活
// 不包含：分区维护（基础设施层独立管理）
type TaskManager struct {
	syncTask     *SyncTask
	tokenTask    *TokenTask
	syncSchedule bool
	logger       *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	Users     UserLister
	Syncer    Syncer
	Refresher TokenRefresher
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// 定时同步
	SyncEnabled     bool
	SyncCron        string
	SyncDaysBack    int
	UserConcurrency int
	RunTimeout      time.Duration

	// Token 保活
	TokenEnabled     bool
	TokenCron        string
	RefreshAhead     time.Duration
	TokenConcurrency int
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		SyncEnabled:     true,
		SyncCron:        "0 */30 * * * *",
		SyncDaysBack:    7,
		UserConcurrency: 5,
		RunTimeout:      10 * time.Minute,

		TokenEnabled:     true,
		TokenCron:        "0 0/40 * * * *",
		RefreshAhead:     time.Hour,
		TokenConcurrency: 10,
	}
}

// NewTaskManager 创建任务管理器
// 同步任务只要有 Syncer 就创建（手动触发需要），SyncEnabled 只控制定时调度
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig, log *zap.Logger) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	tm := &TaskManager{syncSchedule: cfg.SyncEnabled, logger: log.Named("task_manager")}

	if deps.Syncer != nil && deps.Users != nil {
		tm.syncTask = NewSyncTask(deps.Users, deps.Syncer, log)
		tm.syncTask.SetConcurrency(cfg.UserConcurrency, 200*time.Millisecond)
		tm.syncTask.SetSchedule(cfg.SyncCron, cfg.SyncDaysBack, cfg.RunTimeout)
	}

	if cfg.TokenEnabled && deps.Refresher != nil {
		tm.tokenTask = NewTokenTask(deps.Refresher, log)
		tm.tokenTask.SetSchedule(cfg.TokenCron, cfg.RefreshAhead)
		tm.tokenTask.SetConcurrency(cfg.TokenConcurrency, 50*time.Millisecond)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() {
	tm.logger.Info("[TaskManager] 正在启动后台任务...")

	if tm.syncTask != nil && tm.syncSchedule {
		tm.syncTask.Start()
	}
	if tm.tokenTask != nil {
		tm.tokenTask.Start()
	}

	tm.logger.Info("[TaskManager] 后台任务已全部启动")
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	tm.logger.Info("[TaskManager] 正在停止后台任务...")

	if tm.syncTask != nil && tm.syncSchedule {
		tm.syncTask.Stop()
	}
	if tm.tokenTask != nil {
		tm.tokenTask.Stop()
	}

	tm.logger.Info("[TaskManager] 后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerSync 立即同步单个用户；该用户已有同步在执行时返回 ErrSyncBusy
func (tm *TaskManager) TriggerSync(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error) {
	if tm.syncTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.syncTask.SyncUserNow(ctx, userID, daysBack)
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"sync":          tm.syncTask != nil,
		"sync_schedule": tm.syncTask != nil && tm.syncSchedule,
		"token":         tm.tokenTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
	ErrSyncBusy     TaskError = "sync already running for user"
)
