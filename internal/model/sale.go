package model

import (
	"time"
)

// 归一化状态
const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCancelled = "cancelled"
	SaleStatusRefunded  = "refunded"
	SaleStatusUnknown   = "unknown"
)

// Sale 归一化后的单条销售明细（一个订单行）
// 唯一身份: (user_id, platform, order_id, item_id)
type Sale struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;uniqueIndex:idx_sale_identity,priority:1;index:idx_sale_user_date,priority:1" json:"-"`

	Platform string `gorm:"size:32;not null;uniqueIndex:idx_sale_identity,priority:2" json:"platform"`
	OrderID  string `gorm:"size:128;not null;uniqueIndex:idx_sale_identity,priority:3" json:"order_id"`
	ItemID   string `gorm:"size:128;not null;uniqueIndex:idx_sale_identity,priority:4" json:"item_id"`

	ItemTitle string  `gorm:"size:512" json:"item_title"`
	Quantity  int     `gorm:"not null" json:"quantity"`
	Price     float64 `gorm:"type:numeric(14,4);not null;comment:含运费分摊的单价" json:"price"`
	Currency  string  `gorm:"size:8" json:"currency"`

	BuyerName  string `gorm:"size:255" json:"buyer_name"`
	BuyerEmail string `gorm:"size:255;index" json:"buyer_email"`

	SaleDate         time.Time `gorm:"not null;index:idx_sale_user_date,priority:2" json:"sale_date"`
	Status           string    `gorm:"size:64;comment:平台原始状态" json:"status"`
	NormalizedStatus string    `gorm:"size:16;index" json:"normalized_status"`
	ShippingAddress  string    `gorm:"type:text" json:"shipping_address"`
	TrackingNumber   string    `gorm:"size:128" json:"tracking_number"`

	LastSyncRun string    `gorm:"size:36;comment:最近一次写入的同步批次" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

func (Sale) TableName() string { return "sales" }

// Revenue 行收入 = 单价 × 数量
func (s *Sale) Revenue() float64 {
	return s.Price * float64(s.Quantity)
}
