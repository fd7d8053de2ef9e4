package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ==================== 错误分类 ====================

var (
	ErrAuthExpired       = errors.New("platform token expired")
	ErrRateLimited       = errors.New("platform rate limited")
	ErrTransient         = errors.New("platform transient network error")
	ErrPermanent         = errors.New("platform permanent api error")
	ErrInvalidCredential = errors.New("platform credential invalid")
	ErrUnavailable       = errors.New("platform unavailable")
	ErrUnknownPlatform   = errors.New("unknown platform")
)

// APIError 平台接口错误，可通过 errors.Is 匹配到 Kind
type APIError struct {
	Platform   string
	StatusCode int
	Kind       error
	Body       string
	RetryAfter time.Duration
	cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v: %v", e.Platform, e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %v (HTTP %d): %s", e.Platform, e.Kind, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// IsRetryable 限流与瞬时网络错误可退避重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// classifyResponse 将 resty 的响应或网络错误映射到错误分类
func classifyResponse(platform string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &APIError{Platform: platform, Kind: ErrTransient, cause: err}
	}

	code := resp.StatusCode()
	if code < http.StatusBadRequest {
		return nil
	}

	apiErr := &APIError{
		Platform:   platform,
		StatusCode: code,
		Body:       truncate(string(resp.Body()), 512),
	}

	switch {
	case code == http.StatusUnauthorized:
		apiErr.Kind = ErrAuthExpired
	case code == http.StatusForbidden:
		apiErr.Kind = ErrInvalidCredential
	case code == http.StatusTooManyRequests:
		apiErr.Kind = ErrRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
	case code == http.StatusRequestTimeout,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		apiErr.Kind = ErrTransient
	default:
		apiErr.Kind = ErrPermanent
	}
	return apiErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
