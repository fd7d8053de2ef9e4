package model

import (
	"time"

	"gorm.io/datatypes"
)

// 同步结果
const (
	SyncOutcomeSuccess = "success"
	SyncOutcomePartial = "partial"
	SyncOutcomeError   = "error"
)

// PlatformNone 用户未连接任何平台时的提示性记录
const PlatformNone = "none"

// SyncRun 单次同步中单个平台的审计记录，只追加不修改
// postgres 下按 started_at 月分区
type SyncRun struct {
	ID          int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64                       `gorm:"not null;index:idx_sync_run_user,priority:1" json:"user_id"`
	BatchID     string                      `gorm:"size:36;index" json:"batch_id"`
	Platform    string                      `gorm:"size:32;not null" json:"platform"`
	StoreID     string                      `gorm:"size:255" json:"store_id"`
	StartedAt   time.Time                   `gorm:"not null;index:idx_sync_run_user,priority:2" json:"started_at"`
	FinishedAt  time.Time                   `json:"finished_at"`
	ItemsSynced int                         `json:"items_synced"`
	ItemsFailed int                         `json:"items_failed"`
	Outcome     string                      `gorm:"size:16;not null" json:"outcome"`
	ErrorDetail string                      `gorm:"type:text" json:"error_detail,omitempty"`
	Warnings    datatypes.JSONSlice[string] `json:"warnings,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

func (SyncRun) TableName() string { return "sync_runs" }
