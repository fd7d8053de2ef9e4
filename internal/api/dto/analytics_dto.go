package dto

import "time"

// AnalyticsQuery 统计窗口参数；start/end 优先，其次 days，都为空表示全部
type AnalyticsQuery struct {
	StartDate string `form:"start_date"` // 2025-01-01
	EndDate   string `form:"end_date"`
	Days      int    `form:"days"`
	Limit     int    `form:"limit"`
}

// ==================== 趋势 ====================

// TrendPoint 按天汇总
type TrendPoint struct {
	Date    string  `json:"date"` // 2006-01-02
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
	Units   int     `json:"units"`
}

// TrendResponse 收入趋势
type TrendResponse struct {
	Start        *time.Time   `json:"start,omitempty"`
	End          *time.Time   `json:"end,omitempty"`
	TotalRevenue float64      `json:"total_revenue"`
	TotalOrders  int          `json:"total_orders"`
	Points       []TrendPoint `json:"points"`
}

// ==================== 客户 ====================

// 客户分类
const (
	CustomerFrequent  = "Frequent Buyer"
	CustomerHighValue = "High Value"
	CustomerRegular   = "Regular"
)

// CustomerAggregate 按 (buyer_email, buyer_name) 聚合的客户，读取时计算
type CustomerAggregate struct {
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	OrderCount    int       `json:"order_count"`
	TotalSpent    float64   `json:"total_spent"`
	FirstOrder    time.Time `json:"first_order"`
	LastOrder     time.Time `json:"last_order"`
	AvgOrderValue float64   `json:"avg_order_value"`
	Segment       string    `json:"segment"`
}

// CustomerMetrics 窗口内客户指标
type CustomerMetrics struct {
	TotalCustomers     int `json:"total_customers"`
	NewCustomers       int `json:"new_customers"`
	ReturningCustomers int `json:"returning_customers"`
	RepeatRate         int `json:"repeat_rate"` // 百分比，四舍五入
	FrequentBuyers     int `json:"frequent_buyers"`
	HighValue          int `json:"high_value"`
	Regular            int `json:"regular"`
}

// CustomersResponse 客户视图
type CustomersResponse struct {
	Metrics   CustomerMetrics     `json:"metrics"`
	Customers []CustomerAggregate `json:"customers"`
}
