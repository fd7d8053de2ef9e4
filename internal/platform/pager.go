package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"sales_ledger_v1/internal/model"
)

// ==================== Pager 分页控制器 ====================

// Pager 驱动适配器逐页拉取直到结束
// 结束条件: 短页 / 累计达到平台上报总数 / 平台声明结束 / 达到页数上限
type Pager struct {
	PageSize       int
	MaxPages       int
	PageTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetryAfter  time.Duration // 平台 Retry-After 的等待上限
	Refresher      Refresher
	Logger         *zap.Logger
}

// Collected 拉取结果
type Collected struct {
	Orders     []RawOrder
	Pages      int
	Truncated  bool
	Warnings   []string
	Credential *model.Credential // 过程中刷新过的最新凭据
}

// NewPager 默认参数: 每页 100，最多 50 页，单页 30s，最多 3 次尝试
func NewPager(refresher Refresher, log *zap.Logger) *Pager {
	return &Pager{
		PageSize:       100,
		MaxPages:       50,
		PageTimeout:    30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxRetryAfter:  time.Minute,
		Refresher:      refresher,
		Logger:         log,
	}
}

// Collect 拉取 [start, end] 内的全部订单
// 出错时返回已拉取的部分结果和错误
func (p *Pager) Collect(ctx context.Context, adapter Adapter, cred *model.Credential, start, end time.Time) (*Collected, error) {
	out := &Collected{Credential: cred}
	log := p.logger().With(zap.String("platform", adapter.Platform()), zap.String("store_id", cred.StoreID))

	cursor := ""
	for out.Pages < p.MaxPages {
		req := PageRequest{Start: start, End: end, Cursor: cursor, PageSize: p.PageSize}

		page, err := p.fetchPage(ctx, adapter, out, req)
		if err != nil {
			return out, err
		}

		out.Orders = append(out.Orders, page.Orders...)
		out.Pages++

		limit := page.Limit
		if limit <= 0 {
			limit = p.PageSize
		}
		switch {
		case page.Done,
			page.NextCursor == "",
			len(page.Orders) < limit,
			page.Total >= 0 && len(out.Orders) >= page.Total:
			log.Debug("[Pager] 拉取结束", zap.Int("pages", out.Pages), zap.Int("orders", len(out.Orders)))
			return out, nil
		}
		cursor = page.NextCursor
	}

	out.Truncated = true
	warning := fmt.Sprintf("达到分页上限 %d 页，已保留前 %d 条订单", p.MaxPages, len(out.Orders))
	out.Warnings = append(out.Warnings, warning)
	log.Warn("[Pager] "+warning, zap.Int("pages", out.Pages))
	return out, nil
}

// fetchPage 拉取单页；Token 过期时刷新凭据并对同一页重试一次
func (p *Pager) fetchPage(ctx context.Context, adapter Adapter, out *Collected, req PageRequest) (*Page, error) {
	page, err := p.fetchWithRetry(ctx, adapter, out.Credential, req)
	if err == nil || !errors.Is(err, ErrAuthExpired) {
		return page, err
	}
	if p.Refresher == nil {
		return nil, err
	}

	p.logger().Info("[Pager] Token 已过期，刷新后重试当前页",
		zap.String("platform", adapter.Platform()), zap.String("cursor", req.Cursor))

	fresh, rerr := p.Refresher.Refresh(ctx, out.Credential)
	if rerr != nil {
		return nil, fmt.Errorf("刷新凭据失败: %w", rerr)
	}
	out.Credential = fresh
	return p.fetchWithRetry(ctx, adapter, fresh, req)
}

// fetchWithRetry 限流与瞬时错误指数退避重试，其余错误立即返回
// 平台给出 Retry-After 时按其等待，不计入指数退避
func (p *Pager) fetchWithRetry(ctx context.Context, adapter Adapter, cred *model.Credential, req PageRequest) (*Page, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}

	attempts := 0
	var lastErr error
	operation := func() (*Page, error) {
		attempts++
		pageCtx, cancel := context.WithTimeout(ctx, p.PageTimeout)
		defer cancel()

		page, err := adapter.FetchPage(pageCtx, cred, req)
		if err == nil {
			return page, nil
		}
		if !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return nil, &backoff.RetryAfterError{Duration: p.retryAfter(apiErr.RetryAfter)}
		}
		return nil, err
	}

	notify := func(_ error, next time.Duration) {
		p.logger().Warn("[Pager] 请求失败，准备重试",
			zap.String("platform", adapter.Platform()),
			zap.Int("attempt", attempts),
			zap.Duration("next", next),
			zap.Error(lastErr))
	}

	page, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var retryAfter *backoff.RetryAfterError
		if errors.As(err, &retryAfter) {
			err = lastErr
		}
		if IsRetryable(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %d 次尝试后放弃: %w", ErrUnavailable, attempts, err)
		}
		return nil, err
	}
	return page, nil
}

func (p *Pager) retryAfter(d time.Duration) time.Duration {
	if p.MaxRetryAfter > 0 && d > p.MaxRetryAfter {
		return p.MaxRetryAfter
	}
	return d
}

func (p *Pager) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
