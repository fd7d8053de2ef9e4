package net

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "sales-ledger/1.0"

// NewClient 创建平台请求使用的 Resty 客户端
// 每次同步单独创建，不在请求之间共享；重试由调用方的分页器统一负责
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent)

	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	return client
}
