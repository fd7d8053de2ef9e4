package repository

import (
	"context"

	"gorm.io/gorm"

	"sales_ledger_v1/internal/model"
)

// SyncRunFilter 同步记录查询条件
type SyncRunFilter struct {
	UserID   int64
	Platform string
	BatchID  string
	Limit    int
}

// SyncRunRepository 同步审计记录，只追加
type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	List(ctx context.Context, filter SyncRunFilter) ([]model.SyncRun, error)
}

type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// List 最近的同步记录，按开始时间倒序
func (r *syncRunRepository) List(ctx context.Context, filter SyncRunFilter) ([]model.SyncRun, error) {
	var runs []model.SyncRun

	query := r.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id = ?", filter.BatchID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
