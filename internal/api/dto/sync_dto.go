package dto

import "time"

// ==================== 手动同步 ====================

// SyncRequest 手动同步请求
type SyncRequest struct {
	DaysBack int `form:"days_back"` // 0 使用默认值
}

// SyncResponse 一次同步的汇总结果，每个平台一项
type SyncResponse struct {
	Message string           `json:"message"`
	BatchID string           `json:"batch_id"`
	Results []PlatformResult `json:"results"`
}

// PlatformResult 单个平台的同步结果
type PlatformResult struct {
	Platform    string   `json:"platform"`
	StoreID     string   `json:"store_id"`
	Success     bool     `json:"success"`
	ItemsSynced int      `json:"items_synced"`
	ItemsFailed int      `json:"items_failed"`
	Outcome     string   `json:"outcome"`
	Error       string   `json:"error,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ==================== 同步记录 ====================

// ListSyncRunsRequest 同步记录查询
type ListSyncRunsRequest struct {
	Platform string `form:"platform"`
	BatchID  string `form:"batch_id"`
	Limit    int    `form:"limit,default=50"`
}

// SyncRunItem 同步记录列表项
type SyncRunItem struct {
	ID          int64     `json:"id"`
	BatchID     string    `json:"batch_id"`
	Platform    string    `json:"platform"`
	StoreID     string    `json:"store_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	ItemsSynced int       `json:"items_synced"`
	ItemsFailed int       `json:"items_failed"`
	Outcome     string    `json:"outcome"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}
