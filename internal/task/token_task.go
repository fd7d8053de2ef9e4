package task

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sales_ledger_v1/internal/model"
)

// TokenRefresher 查找即将过期的凭据并刷新，由 service.CredentialService 实现
type TokenRefresher interface {
	ListExpiring(ctx context.Context, ahead time.Duration) ([]model.Credential, error)
	Refresh(ctx context.Context, cred *model.Credential) (*model.Credential, error)
}

// TokenTask Token 保活任务
type TokenTask struct {
	creds  TokenRefresher
	cron   *cron.Cron
	logger *zap.Logger

	spec  string
	ahead time.Duration

	// 控制并发刷新的数量，避免触发平台限流
	concurrencyLimit int
	sleepTime        time.Duration
}

func NewTokenTask(creds TokenRefresher, log *zap.Logger) *TokenTask {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenTask{
		creds:            creds,
		cron:             cron.New(cron.WithSeconds()),
		logger:           log.Named("token_task"),
		spec:             "0 0/40 * * * *",
		ahead:            time.Hour,
		concurrencyLimit: 10,
		sleepTime:        50 * time.Millisecond, // 平滑波峰
	}
}

// SetSchedule 设置 cron 表达式与提前刷新时间
func (t *TokenTask) SetSchedule(spec string, ahead time.Duration) {
	if spec != "" {
		t.spec = spec
	}
	if ahead > 0 {
		t.ahead = ahead
	}
}

// SetConcurrency 设置并发参数
func (t *TokenTask) SetConcurrency(limit int, sleep time.Duration) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
	t.sleepTime = sleep
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	t.logger.Info("[TokenTask] 服务启动，正在执行首次 Token 检查...")
	t.RefreshNow()

	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.refreshJob(ctx)
	})
	if err != nil {
		t.logger.Error("[TokenTask] 定时任务启动失败", zap.String("spec", t.spec), zap.Error(err))
		return
	}

	t.cron.Start()
	t.logger.Info("[TokenTask] Token 保活任务已启动", zap.String("spec", t.spec))
}

// Stop 停止任务
func (t *TokenTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.logger.Info("[TokenTask] 已停止")
}

// refreshJob 刷新即将过期的凭据，单个失败不影响其他
func (t *TokenTask) refreshJob(ctx context.Context) {
	creds, err := t.creds.ListExpiring(ctx, t.ahead)
	if err != nil {
		t.logger.Error("[TokenTask] 查询即将过期的凭据失败", zap.Error(err))
		return
	}
	if len(creds) == 0 {
		return
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	t.logger.Info("[TokenTask] 开始刷新 Token", zap.Int("credentials", len(creds)), zap.Int("concurrency", t.concurrencyLimit))

	for i := range creds {
		select {
		case <-ctx.Done():
			t.logger.Warn("[TokenTask] 任务超时停止")
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		time.Sleep(t.sleepTime)

		go func(c model.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := t.creds.Refresh(ctx, &c); err != nil {
				t.logger.Warn("[TokenTask] 刷新失败",
					zap.Int64("credential_id", c.ID),
					zap.String("platform", c.Platform),
					zap.String("store_id", c.StoreID),
					zap.Error(err))
			}
		}(creds[i])
	}

	wg.Wait()
	t.logger.Info("[TokenTask] 本轮 Token 刷新完成")
}

// RefreshNow 后台立即执行一轮
func (t *TokenTask) RefreshNow() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.refreshJob(ctx)
	}()
}
