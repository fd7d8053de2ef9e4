package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PartitionTask 分区维护任务：补齐未来分区、清理过期分区
type PartitionTask struct {
	manager      *PartitionManager
	futureMonths int
	interval     time.Duration
	timeout      time.Duration
	logger       *zap.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// PartitionTaskOption 任务选项
type PartitionTaskOption func(*PartitionTask)

// WithFutureMonths 设置未来分区月数
func WithFutureMonths(months int) PartitionTaskOption {
	return func(t *PartitionTask) {
		if months > 0 {
			t.futureMonths = months
		}
	}
}

// WithInterval 设置执行间隔
func WithInterval(d time.Duration) PartitionTaskOption {
	return func(t *PartitionTask) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.Logger) PartitionTaskOption {
	return func(t *PartitionTask) {
		if log != nil {
			t.logger = log.Named("partition_task")
		}
	}
}

// NewPartitionTask 创建分区维护任务
func NewPartitionTask(manager *PartitionManager, opts ...PartitionTaskOption) *PartitionTask {
	t := &PartitionTask{
		manager:      manager,
		futureMonths: 3,
		interval:     24 * time.Hour,
		timeout:      5 * time.Minute,
		logger:       zap.NewNop(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start 启动任务，启动时立即执行一次
func (t *PartitionTask) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()

	t.logger.Info("[PartitionTask] 已启动",
		zap.Duration("interval", t.interval),
		zap.Int("future_months", t.futureMonths))
}

// Stop 停止任务并等待当前执行结束
func (t *PartitionTask) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
	t.logger.Info("[PartitionTask] 已停止")
}

func (t *PartitionTask) run() {
	defer t.wg.Done()

	t.RunOnce()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.RunOnce()
		case <-t.stopCh:
			return
		}
	}
}

// RunOnce 执行一次维护
func (t *PartitionTask) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	start := time.Now()

	if err := t.manager.EnsureFuturePartitions(ctx, t.futureMonths); err != nil {
		t.logger.Warn("[PartitionTask] 创建分区失败", zap.Error(err))
	}

	if err := t.manager.HealthCheck(ctx); err != nil {
		t.logger.Warn("[PartitionTask] 健康检查未通过", zap.Error(err))
	}

	dropped, err := t.manager.CleanupExpiredPartitions(ctx)
	if err != nil {
		t.logger.Warn("[PartitionTask] 清理过期分区失败", zap.Error(err))
	}

	if stats, err := t.manager.GetAllStats(ctx); err == nil {
		for _, s := range stats {
			t.logger.Info("[PartitionTask] 分区统计",
				zap.String("table", s.TableName),
				zap.Int("partitions", s.PartitionCount),
				zap.Float64("size_mb", float64(s.TotalSizeBytes)/1024/1024))
		}
	}

	t.logger.Info("[PartitionTask] 执行完成",
		zap.Int("dropped", dropped),
		zap.Duration("elapsed", time.Since(start)))
}
