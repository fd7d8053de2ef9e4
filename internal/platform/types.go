package platform

import (
	"context"
	"time"

	"sales_ledger_v1/internal/model"
)

// ==================== 原始订单结构 ====================

// RawOrder 各平台统一输出的原始订单，只在一次同步内存在，不落库
type RawOrder struct {
	OrderID         string
	ShippingTotal   float64
	Currency        string
	Status          string
	Buyer           Buyer
	CreatedAt       time.Time
	ShippingAddress string
	TrackingNumber  string
	Items           []RawItem

	// Defect 解析阶段发现的问题，非空时整单作为异常跳过
	Defect string
}

// Buyer 买家信息
type Buyer struct {
	Name  string
	Email string
}

// RawItem 原始订单行
type RawItem struct {
	ItemID    string // 平台无稳定 ID 时为空，由归一化生成
	Title     string
	UnitPrice float64
	Quantity  int
}

// ==================== Adapter 契约 ====================

// PageRequest 单页请求
type PageRequest struct {
	Start    time.Time
	End      time.Time
	Cursor   string // 空串表示第一页
	PageSize int
}

// Page 单页结果
type Page struct {
	Orders     []RawOrder
	NextCursor string
	Done       bool
	Total      int // 平台上报的总数，< 0 表示未知
	Limit      int // 平台实际采用的页大小，0 表示与请求一致
}

// Adapter 平台适配器，每次同步按凭据新建，不跨请求共享
type Adapter interface {
	Platform() string
	FetchPage(ctx context.Context, cred *model.Credential, req PageRequest) (*Page, error)
}

// Refresher 凭据刷新能力，由凭据服务实现
type Refresher interface {
	Refresh(ctx context.Context, cred *model.Credential) (*model.Credential, error)
}

// Options 平台接入参数（来自配置）
type Options struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}
