package dto

import "time"

// ListSalesRequest 销售明细列表请求
type ListSalesRequest struct {
	Platform  string `form:"platform"`
	Status    string `form:"status"`     // completed, pending, cancelled, refunded, unknown
	StartDate string `form:"start_date"` // 2025-01-01
	EndDate   string `form:"end_date"`
	Keyword   string `form:"keyword"` // 商品标题、买家、订单号
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
}

// ListSalesResponse 销售明细列表响应
type ListSalesResponse struct {
	Total int64      `json:"total"`
	List  []SaleItem `json:"list"`
}

// SaleItem 标准销售明细对外结构
type SaleItem struct {
	ID               int64     `json:"id"`
	Platform         string    `json:"platform"`
	OrderID          string    `json:"order_id"`
	ItemID           string    `json:"item_id"`
	ItemTitle        string    `json:"item_title"`
	Quantity         int       `json:"quantity"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	BuyerName        string    `json:"buyer_name"`
	BuyerEmail       string    `json:"buyer_email"`
	SaleDate         time.Time `json:"sale_date"`
	Status           string    `json:"status"`
	NormalizedStatus string    `json:"normalized_status"`
	ShippingAddress  string    `json:"shipping_address"`
	TrackingNumber   string    `json:"tracking_number"`
	CreatedAt        time.Time `json:"created_at"`
}
