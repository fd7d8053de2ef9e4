package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sales_ledger_v1/internal/model"
)

// ==================== 过滤条件 ====================

// SaleFilter 销售明细列表过滤条件
type SaleFilter struct {
	UserID    int64
	Platform  string
	Status    string // 归一化状态
	StartDate *time.Time
	EndDate   *time.Time
	Keyword   string // 商品标题 / 买家 / 订单号
	Page      int
	PageSize  int
}

// SaleWindow 统计查询的时间窗口，Start/End 为空表示不限
type SaleWindow struct {
	UserID          int64
	Start           *time.Time
	End             *time.Time
	ExcludeStatuses []string // 不计入收入的归一化状态
}

// PlatformStat 平台维度汇总
type PlatformStat struct {
	Platform string  `json:"platform"`
	Revenue  float64 `json:"revenue"`
	Sales    int64   `json:"sales"`
	Units    int64   `json:"units"`
	Orders   int64   `json:"orders"`
}

// ProductStat 商品维度汇总
type ProductStat struct {
	ItemTitle string  `json:"item_title"`
	Platform  string  `json:"platform"`
	Units     int64   `json:"units"`
	Revenue   float64 `json:"revenue"`
	Orders    int64   `json:"orders"`
}

// ==================== SaleRepository 销售明细仓库 ====================

// SaleRepository 销售明细仓库接口
type SaleRepository interface {
	// Upsert 按 (user_id, platform, order_id, item_id) 插入或覆盖
	Upsert(ctx context.Context, sale *model.Sale) error
	GetByIdentity(ctx context.Context, userID int64, platform, orderID, itemID string) (*model.Sale, error)
	List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)

	// 统计
	ListForAnalytics(ctx context.Context, w SaleWindow) ([]model.Sale, error)
	PlatformBreakdown(ctx context.Context, w SaleWindow) ([]PlatformStat, error)
	TopProducts(ctx context.Context, w SaleWindow, limit int) ([]ProductStat, error)
}

type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository 创建销售明细仓库
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

// saleUpsertColumns 冲突时以最近一次同步为准覆盖的字段
var saleUpsertColumns = []string{
	"item_title", "quantity", "price", "currency",
	"buyer_name", "buyer_email",
	"status", "normalized_status",
	"shipping_address", "tracking_number",
	"last_sync_run", "updated_at",
}

func (r *saleRepository) Upsert(ctx context.Context, sale *model.Sale) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "platform"}, {Name: "order_id"}, {Name: "item_id"},
		},
		DoUpdates: clause.AssignmentColumns(saleUpsertColumns),
	}).Create(sale).Error
}

func (r *saleRepository) GetByIdentity(ctx context.Context, userID int64, platform, orderID, itemID string) (*model.Sale, error) {
	var sale model.Sale
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND order_id = ? AND item_id = ?", userID, platform, orderID, itemID).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Sale{}).Where("user_id = ?", filter.UserID)

	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		query = query.Where("normalized_status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		query = query.Where("sale_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("sale_date <= ?", *filter.EndDate)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("item_title LIKE ? OR buyer_name LIKE ? OR buyer_email LIKE ? OR order_id LIKE ?",
			like, like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize
	if err := query.Order("sale_date DESC, id DESC").Limit(filter.PageSize).Offset(offset).Find(&sales).Error; err != nil {
		return nil, 0, err
	}

	return sales, total, nil
}

func (r *saleRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Sale{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// ==================== 统计查询 ====================

// windowScope 用户 + 时间窗口 + 状态排除
func windowScope(w SaleWindow) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", w.UserID)
		if w.Start != nil {
			db = db.Where("sale_date >= ?", *w.Start)
		}
		if w.End != nil {
			db = db.Where("sale_date <= ?", *w.End)
		}
		if len(w.ExcludeStatuses) > 0 {
			db = db.Where("normalized_status NOT IN ?", w.ExcludeStatuses)
		}
		return db
	}
}

// ListForAnalytics 窗口内全部明细，按日期升序
func (r *saleRepository) ListForAnalytics(ctx context.Context, w SaleWindow) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.db.WithContext(ctx).
		Scopes(windowScope(w)).
		Order("sale_date ASC, id ASC").
		Find(&sales).Error
	return sales, err
}

// PlatformBreakdown 按平台汇总收入、行数、件数、订单数
func (r *saleRepository) PlatformBreakdown(ctx context.Context, w SaleWindow) ([]PlatformStat, error) {
	var stats []PlatformStat
	err := r.db.WithContext(ctx).
		Model(&model.Sale{}).
		Scopes(windowScope(w)).
		Select("platform, " +
			"COALESCE(SUM(price * quantity), 0) AS revenue, " +
			"COUNT(*) AS sales, " +
			"COALESCE(SUM(quantity), 0) AS units, " +
			"COUNT(DISTINCT order_id) AS orders").
		Group("platform").
		Order("revenue DESC").
		Scan(&stats).Error
	return stats, err
}

// TopProducts 按 (商品标题, 平台) 汇总，收入降序取前 limit 个
func (r *saleRepository) TopProducts(ctx context.Context, w SaleWindow, limit int) ([]ProductStat, error) {
	var stats []ProductStat
	err := r.db.WithContext(ctx).
		Model(&model.Sale{}).
		Scopes(windowScope(w)).
		Select("item_title, platform, " +
			"COALESCE(SUM(quantity), 0) AS units, " +
			"COALESCE(SUM(price * quantity), 0) AS revenue, " +
			"COUNT(DISTINCT order_id) AS orders").
		Group("item_title, platform").
		Order("revenue DESC, item_title ASC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}
