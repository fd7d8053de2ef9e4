package platform

import (
	"context"
	"strconv"
	"strings"
	"time"

	"sales_ledger_v1/internal/model"
)

// ==================== Etsy 原始结构 ====================

type etsyReceiptsResponse struct {
	Count   int           `json:"count"`
	Results []etsyReceipt `json:"results"`
}

type etsyReceipt struct {
	ReceiptID         int64             `json:"receipt_id"`
	BuyerEmail        string            `json:"buyer_email"`
	Name              string            `json:"name"`
	Status            string            `json:"status"`
	FormattedAddress  string            `json:"formatted_address"`
	CreateTimestamp   int64             `json:"create_timestamp"`
	GrandTotal        etsyMoney         `json:"grandtotal"`
	TotalShippingCost etsyMoney         `json:"total_shipping_cost"`
	Shipments         []etsyShipment    `json:"shipments"`
	Transactions      []etsyTransaction `json:"transactions"`
}

// etsyMoney Etsy 金额 = amount / divisor
type etsyMoney struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

func (m etsyMoney) value() float64 {
	return divideMoney(m.Amount, m.Divisor)
}

type etsyShipment struct {
	CarrierName  string `json:"carrier_name"`
	TrackingCode string `json:"tracking_code"`
}

type etsyTransaction struct {
	TransactionID int64     `json:"transaction_id"`
	Title         string    `json:"title"`
	Quantity      int       `json:"quantity"`
	Price         etsyMoney `json:"price"`
}

// ==================== EtsyAdapter ====================

// EtsyAdapter Etsy Open API v3 receipts
// 鉴权: x-api-key (应用 key) + Bearer access token；分页: offset
type EtsyAdapter struct {
	client *apiClient
	apiKey string
}

func NewEtsyAdapter(opts Options) Adapter {
	return &EtsyAdapter{
		client: newAPIClient(model.PlatformEtsy, opts),
		apiKey: opts.ClientID,
	}
}

func (a *EtsyAdapter) Platform() string { return model.PlatformEtsy }

const etsyMaxLimit = 100

func (a *EtsyAdapter) FetchPage(ctx context.Context, cred *model.Credential, req PageRequest) (*Page, error) {
	limit := clampLimit(req.PageSize, etsyMaxLimit)
	offset := cursorInt(req.Cursor)

	var body etsyReceiptsResponse
	r := a.client.http.R().
		SetHeader("x-api-key", a.apiKey).
		SetAuthToken(cred.AccessToken).
		SetQueryParams(map[string]string{
			"min_created": strconv.FormatInt(req.Start.Unix(), 10),
			"max_created": strconv.FormatInt(req.End.Unix(), 10),
			"limit":       strconv.Itoa(limit),
			"offset":      strconv.Itoa(offset),
		})
	if _, err := a.client.get(ctx, r, "/v3/application/shops/"+cred.StoreID+"/receipts", &body); err != nil {
		return nil, err
	}

	orders := make([]RawOrder, 0, len(body.Results))
	for _, rc := range body.Results {
		orders = append(orders, a.toRaw(rc))
	}

	next := offset + len(body.Results)
	return &Page{
		Orders:     orders,
		NextCursor: strconv.Itoa(next),
		Done:       len(body.Results) == 0 || next >= body.Count,
		Total:      body.Count,
		Limit:      limit,
	}, nil
}

func (a *EtsyAdapter) toRaw(rc etsyReceipt) RawOrder {
	raw := RawOrder{
		ShippingTotal:   rc.TotalShippingCost.value(),
		Currency:        rc.GrandTotal.CurrencyCode,
		Status:          rc.Status,
		Buyer:           Buyer{Name: rc.Name, Email: rc.BuyerEmail},
		ShippingAddress: strings.TrimSpace(rc.FormattedAddress),
	}
	if rc.ReceiptID > 0 {
		raw.OrderID = strconv.FormatInt(rc.ReceiptID, 10)
	}
	if rc.CreateTimestamp > 0 {
		raw.CreatedAt = time.Unix(rc.CreateTimestamp, 0).UTC()
	}
	if raw.Currency == "" {
		raw.Currency = rc.TotalShippingCost.CurrencyCode
	}
	for _, s := range rc.Shipments {
		if s.TrackingCode != "" {
			raw.TrackingNumber = s.TrackingCode
		}
	}

	for _, tx := range rc.Transactions {
		item := RawItem{
			Title:     tx.Title,
			UnitPrice: tx.Price.value(),
			Quantity:  tx.Quantity,
		}
		if tx.TransactionID > 0 {
			item.ItemID = strconv.FormatInt(tx.TransactionID, 10)
		}
		raw.Items = append(raw.Items, item)
	}
	return raw
}

// ==================== 分页辅助 ====================

func clampLimit(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

func cursorInt(cursor string) int {
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
