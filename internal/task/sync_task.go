package task

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/pkg/lock"
)

// UserLister 列出拥有启用凭据的用户
type UserLister interface {
	ListUsersWithActive(ctx context.Context) ([]int64, error)
}

// Syncer 单用户同步，由 service.SyncService 实现
type Syncer interface {
	RunSync(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error)
}

// ==================== SyncTask 销售同步任务 ====================

// SyncTask 定时同步全部用户；同一用户同一时刻只有一个同步在执行
type SyncTask struct {
	users  UserLister
	syncer Syncer
	cron   *cron.Cron
	busy   *lock.KeyedMutex
	logger *zap.Logger

	spec       string
	daysBack   int
	runTimeout time.Duration

	// 并发控制
	concurrencyLimit int
	sleepTime        time.Duration
}

// NewSyncTask 创建同步任务
func NewSyncTask(users UserLister, syncer Syncer, log *zap.Logger) *SyncTask {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncTask{
		users:            users,
		syncer:           syncer,
		cron:             cron.New(cron.WithSeconds()),
		busy:             lock.NewKeyedMutex(),
		logger:           log.Named("sync_task"),
		spec:             "0 */30 * * * *",
		runTimeout:       10 * time.Minute,
		concurrencyLimit: 5,
		sleepTime:        200 * time.Millisecond,
	}
}

// SetConcurrency 设置并发参数
func (t *SyncTask) SetConcurrency(limit int, sleep time.Duration) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
	t.sleepTime = sleep
}

// SetSchedule 设置 cron 表达式、回溯天数与单轮超时
func (t *SyncTask) SetSchedule(spec string, daysBack int, runTimeout time.Duration) {
	if spec != "" {
		t.spec = spec
	}
	t.daysBack = daysBack
	if runTimeout > 0 {
		t.runTimeout = runTimeout
	}
}

// Start 启动定时任务
func (t *SyncTask) Start() {
	t.logger.Info("[SyncTask] 执行首次同步...")
	t.SyncAllNow()

	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.runTimeout)
		defer cancel()
		t.syncAllUsers(ctx)
	})
	if err != nil {
		t.logger.Error("[SyncTask] 定时任务启动失败", zap.String("spec", t.spec), zap.Error(err))
		return
	}

	t.cron.Start()
	t.logger.Info("[SyncTask] 已启动", zap.String("spec", t.spec))
}

// Stop 停止任务，等待执行中的同步结束
func (t *SyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.logger.Info("[SyncTask] 已停止")
}

// syncAllUsers 同步所有拥有启用凭据的用户
func (t *SyncTask) syncAllUsers(ctx context.Context) {
	userIDs, err := t.users.ListUsersWithActive(ctx)
	if err != nil {
		t.logger.Error("[SyncTask] 获取用户列表失败", zap.Error(err))
		return
	}
	if len(userIDs) == 0 {
		t.logger.Debug("[SyncTask] 无需要同步的用户")
		return
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	var (
		totalSynced int
		totalFailed int
		skipped     int
		errCount    int
		mu          sync.Mutex
	)

	t.logger.Info("[SyncTask] 开始同步", zap.Int("users", len(userIDs)), zap.Int("concurrency", t.concurrencyLimit))

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			t.logger.Warn("[SyncTask] 任务超时停止")
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		go func(userID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := t.runUser(ctx, userID, t.daysBack)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == ErrSyncBusy:
				skipped++
				return
			case err != nil:
				errCount++
				t.logger.Warn("[SyncTask] 用户同步失败", zap.Int64("user_id", userID), zap.Error(err))
				return
			}
			for _, r := range resp.Results {
				totalSynced += r.ItemsSynced
				totalFailed += r.ItemsFailed
			}
		}(userID)
	}

	wg.Wait()
	t.logger.Info("[SyncTask] 同步完成",
		zap.Int("users", len(userIDs)),
		zap.Int("synced", totalSynced),
		zap.Int("failed", totalFailed),
		zap.Int("skipped", skipped),
		zap.Int("errors", errCount))
}

// runUser 同一用户已在同步时直接返回 ErrSyncBusy
func (t *SyncTask) runUser(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error) {
	unlock, ok := t.busy.TryLock("sync:user:" + strconv.FormatInt(userID, 10))
	if !ok {
		return nil, ErrSyncBusy
	}
	defer unlock()
	return t.syncer.RunSync(ctx, userID, daysBack)
}

// ==================== 手动触发 ====================

// SyncUserNow 立即同步单个用户
func (t *SyncTask) SyncUserNow(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error) {
	return t.runUser(ctx, userID, daysBack)
}

// SyncAllNow 后台同步全部用户
func (t *SyncTask) SyncAllNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.runTimeout)
		defer cancel()
		t.syncAllUsers(ctx)
	}()
}
