package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/normalize"
	"sales_ledger_v1/internal/platform"
	"sales_ledger_v1/internal/repository"
)

// maxRunWarnings 单条 SyncRun 保留的警告条数
const maxRunWarnings = 50

// AdapterFactory 按平台名构造适配器，由 platform.Registry 实现
type AdapterFactory interface {
	New(name string) (platform.Adapter, error)
}

// SyncOptions 同步参数
type SyncOptions struct {
	Concurrency     int           // 单用户平台并发
	DefaultDaysBack int           // days_back <= 0 时使用
	MaxDaysBack     int           // days_back 上限
	RefreshSkew     time.Duration // Token 将在此时间内过期则先刷新
}

// ==================== SyncService 同步编排 ====================

// SyncService 对单个用户的全部平台执行 拉取 -> 归一化 -> 入账 -> 审计
type SyncService struct {
	creds      CredentialProvider
	adapters   AdapterFactory
	pager      *platform.Pager
	normalizer *normalize.Normalizer
	ledger     *LedgerWriter
	runs       repository.SyncRunRepository
	opts       SyncOptions
	logger     *zap.Logger
	now        func() time.Time
}

func NewSyncService(
	creds CredentialProvider,
	adapters AdapterFactory,
	pager *platform.Pager,
	normalizer *normalize.Normalizer,
	ledger *LedgerWriter,
	runs repository.SyncRunRepository,
	opts SyncOptions,
	log *zap.Logger,
) *SyncService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.DefaultDaysBack <= 0 {
		opts.DefaultDaysBack = 7
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{
		creds:      creds,
		adapters:   adapters,
		pager:      pager,
		normalizer: normalizer,
		ledger:     ledger,
		runs:       runs,
		opts:       opts,
		logger:     log.Named("sync"),
		now:        time.Now,
	}
}

// RunSync 同步用户全部启用平台
// 只有读取凭据失败会返回 error；单个平台的失败体现在对应结果项中
func (s *SyncService) RunSync(ctx context.Context, userID int64, daysBack int) (*dto.SyncResponse, error) {
	creds, err := s.creds.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.clampDays(daysBack))
	log := s.logger.With(zap.Int64("user_id", userID), zap.String("batch_id", batchID))

	if len(creds) == 0 {
		s.recordNoPlatform(ctx, userID, batchID, end)
		log.Info("[SyncService] 用户未连接任何平台")
		return &dto.SyncResponse{
			Message: "未连接任何平台，无需同步",
			BatchID: batchID,
			Results: []dto.PlatformResult{},
		}, nil
	}

	log.Info("[SyncService] 开始同步",
		zap.Int("platforms", len(creds)),
		zap.Time("start", start),
		zap.Time("end", end))

	results := make([]dto.PlatformResult, len(creds))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i := range creds {
		cred := creds[i]
		g.Go(func() error {
			results[i] = s.syncPlatform(ctx, userID, batchID, &cred, start, end)
			return nil
		})
	}
	_ = g.Wait()

	var ok, partial, failed int
	for _, r := range results {
		switch r.Outcome {
		case model.SyncOutcomeSuccess:
			ok++
		case model.SyncOutcomePartial:
			partial++
		default:
			failed++
		}
	}

	log.Info("[SyncService] 同步结束", zap.Int("success", ok), zap.Int("partial", partial), zap.Int("error", failed))
	return &dto.SyncResponse{
		Message: fmt.Sprintf("同步完成: %d 个平台成功, %d 个部分成功, %d 个失败", ok, partial, failed),
		BatchID: batchID,
		Results: results,
	}, nil
}

func (s *SyncService) clampDays(daysBack int) int {
	if daysBack <= 0 {
		daysBack = s.opts.DefaultDaysBack
	}
	if s.opts.MaxDaysBack > 0 && daysBack > s.opts.MaxDaysBack {
		daysBack = s.opts.MaxDaysBack
	}
	return daysBack
}

// syncPlatform 单个平台的完整流程，任何错误与 panic 都收敛为结果项
func (s *SyncService) syncPlatform(ctx context.Context, userID int64, batchID string, cred *model.Credential, start, end time.Time) (result dto.PlatformResult) {
	run := &model.SyncRun{
		UserID:    userID,
		BatchID:   batchID,
		Platform:  cred.Platform,
		StoreID:   cred.StoreID,
		StartedAt: s.now().UTC(),
	}
	log := s.logger.With(
		zap.Int64("user_id", userID),
		zap.String("platform", cred.Platform),
		zap.String("store_id", cred.StoreID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("[SyncService] 平台同步 panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			run.Outcome = model.SyncOutcomeError
			run.ErrorDetail = fmt.Sprintf("internal error: %v", r)
		}
		s.finishRun(ctx, cred, run, log)
		result = toPlatformResult(run)
	}()

	s.execute(ctx, userID, batchID, cred, start, end, run, log)
	return
}

func (s *SyncService) execute(ctx context.Context, userID int64, batchID string, cred *model.Credential,
	start, end time.Time, run *model.SyncRun, log *zap.Logger) {

	fail := func(stage string, err error) {
		run.Outcome = model.SyncOutcomeError
		run.ErrorDetail = fmt.Sprintf("%s: %v", stage, err)
		log.Warn("[SyncService] 平台同步失败", zap.String("stage", stage), zap.Error(err))
	}

	adapter, err := s.adapters.New(cred.Platform)
	if err != nil {
		fail("adapter", err)
		return
	}

	if cred.CanRefresh() && cred.ExpiresWithin(s.now(), s.opts.RefreshSkew) {
		fresh, err := s.creds.Refresh(ctx, cred)
		if err != nil {
			fail("refresh", err)
			return
		}
		cred = fresh
	}

	collected, err := s.pager.Collect(ctx, adapter, cred, start, end)
	if err != nil {
		// 中途失败的平台不写入任何数据，下次同步整体重来
		fail("fetch", err)
		return
	}
	run.Warnings = append(run.Warnings, collected.Warnings...)

	norm := s.normalizer.Normalize(userID, cred.Platform, batchID, collected.Orders)
	for _, a := range norm.Anomalies {
		run.Warnings = append(run.Warnings, a.Error())
	}

	written, err := s.ledger.Write(ctx, userID, norm.Sales)
	run.ItemsSynced = written.Written
	run.ItemsFailed = norm.Skipped() + len(written.Failures)
	for _, f := range written.Failures {
		run.Warnings = append(run.Warnings, f.Error())
	}
	if err != nil {
		fail("write", err)
		return
	}

	switch {
	case run.ItemsSynced == 0 && run.ItemsFailed > 0:
		run.Outcome = model.SyncOutcomeError
		run.ErrorDetail = fmt.Sprintf("全部 %d 条记录处理失败", run.ItemsFailed)
	case run.ItemsSynced > 0 && (len(norm.Anomalies) > 0 || len(written.Failures) > 0):
		run.Outcome = model.SyncOutcomePartial
	default:
		run.Outcome = model.SyncOutcomeSuccess
	}

	log.Info("[SyncService] 平台同步完成",
		zap.String("outcome", run.Outcome),
		zap.Int("orders", len(collected.Orders)),
		zap.Int("pages", collected.Pages),
		zap.Int("synced", run.ItemsSynced),
		zap.Int("failed", run.ItemsFailed))
}

// finishRun 写审计记录；调用方取消后仍需落库
func (s *SyncService) finishRun(ctx context.Context, cred *model.Credential, run *model.SyncRun, log *zap.Logger) {
	persistCtx := context.WithoutCancel(ctx)
	run.FinishedAt = s.now().UTC()
	if len(run.Warnings) > maxRunWarnings {
		dropped := len(run.Warnings) - maxRunWarnings
		run.Warnings = append(run.Warnings[:maxRunWarnings], fmt.Sprintf("另有 %d 条警告未保留", dropped))
	}

	if err := s.runs.Create(persistCtx, run); err != nil {
		log.Error("[SyncService] 写入同步记录失败", zap.Error(err))
	}
	if run.Outcome != model.SyncOutcomeError && cred.ID > 0 {
		if err := s.creds.MarkSynced(persistCtx, cred.ID, run.FinishedAt); err != nil {
			log.Warn("[SyncService] 更新最近同步时间失败", zap.Error(err))
		}
	}
}

// recordNoPlatform 未连接平台时写一条提示性记录
func (s *SyncService) recordNoPlatform(ctx context.Context, userID int64, batchID string, at time.Time) {
	run := &model.SyncRun{
		UserID:     userID,
		BatchID:    batchID,
		Platform:   model.PlatformNone,
		StartedAt:  at,
		FinishedAt: at,
		Outcome:    model.SyncOutcomeSuccess,
		Warnings:   []string{"no active platform"},
	}
	if err := s.runs.Create(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("[SyncService] 写入同步记录失败", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// ListRuns 用户最近的同步记录
func (s *SyncService) ListRuns(ctx context.Context, userID int64, req *dto.ListSyncRunsRequest) ([]dto.SyncRunItem, error) {
	runs, err := s.runs.List(ctx, repository.SyncRunFilter{
		UserID:   userID,
		Platform: req.Platform,
		BatchID:  req.BatchID,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, err
	}

	items := make([]dto.SyncRunItem, len(runs))
	for i, r := range runs {
		items[i] = dto.SyncRunItem{
			ID:          r.ID,
			BatchID:     r.BatchID,
			Platform:    r.Platform,
			StoreID:     r.StoreID,
			StartedAt:   r.StartedAt,
			FinishedAt:  r.FinishedAt,
			ItemsSynced: r.ItemsSynced,
			ItemsFailed: r.ItemsFailed,
			Outcome:     r.Outcome,
			ErrorDetail: r.ErrorDetail,
			Warnings:    r.Warnings,
		}
	}
	return items, nil
}

func toPlatformResult(run *model.SyncRun) dto.PlatformResult {
	return dto.PlatformResult{
		Platform:    run.Platform,
		StoreID:     run.StoreID,
		Success:     run.Outcome != model.SyncOutcomeError,
		ItemsSynced: run.ItemsSynced,
		ItemsFailed: run.ItemsFailed,
		Outcome:     run.Outcome,
		Error:       run.ErrorDetail,
		Warnings:    run.Warnings,
	}
}
