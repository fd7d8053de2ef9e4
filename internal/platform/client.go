package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	pkgnet "sales_ledger_v1/pkg/net"
)

// apiClient 各适配器共用的请求封装：限速 + 错误分类 + JSON 解码
type apiClient struct {
	platform string
	http     *resty.Client
	limiter  *rate.Limiter
}

func newAPIClient(platform string, opts Options) *apiClient {
	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	return &apiClient{
		platform: platform,
		http:     pkgnet.NewClient(strings.TrimRight(opts.BaseURL, "/"), opts.Timeout),
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// get 发送 GET 请求并把成功响应解码到 out
func (c *apiClient) get(ctx context.Context, req *resty.Request, url string, out any) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := req.SetContext(ctx).Get(url)
	if err := classifyResponse(c.platform, resp, err); err != nil {
		return resp, err
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp, &APIError{
				Platform:   c.platform,
				StatusCode: resp.StatusCode(),
				Kind:       ErrPermanent,
				Body:       truncate(string(resp.Body()), 512),
				cause:      fmt.Errorf("解析响应失败: %w", err),
			}
		}
	}
	return resp, nil
}

// ==================== 金额解析 ====================

// parseMoney 解析字符串金额，空串视为 0
func parseMoney(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("金额格式错误 %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// divideMoney amount / divisor，用于 Etsy 的整数金额
func divideMoney(amount, divisor int64) float64 {
	if divisor <= 0 {
		divisor = 1
	}
	return decimal.New(amount, 0).Div(decimal.New(divisor, 0)).InexactFloat64()
}

// unitPrice 行总价 / 数量，数量为 0 时返回行总价
func unitPrice(lineTotal float64, qty int) float64 {
	if qty <= 0 {
		return lineTotal
	}
	return decimal.NewFromFloat(lineTotal).Div(decimal.NewFromInt(int64(qty))).InexactFloat64()
}
