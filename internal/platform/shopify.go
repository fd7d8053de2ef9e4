package platform

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sales_ledger_v1/internal/model"
)

const (
	shopifyAPIVersion = "2024-10"
	shopifyMaxLimit   = 250
)

// ==================== Shopify 原始结构 ====================

type shopifyOrdersResponse struct {
	Orders []shopifyOrder `json:"orders"`
}

type shopifyOrder struct {
	ID                    int64              `json:"id"`
	Name                  string             `json:"name"`
	Email                 string             `json:"email"`
	CreatedAt             string             `json:"created_at"`
	CancelledAt           *string            `json:"cancelled_at"`
	FinancialStatus       string             `json:"financial_status"`
	FulfillmentStatus     *string            `json:"fulfillment_status"`
	Currency              string             `json:"currency"`
	TotalShippingPriceSet shopifyPriceSet    `json:"total_shipping_price_set"`
	Customer              *shopifyCustomer   `json:"customer"`
	ShippingAddress       *shopifyAddress    `json:"shipping_address"`
	LineItems             []shopifyLineItem  `json:"line_items"`
	Fulfillments          []shopifyFulfilled `json:"fulfillments"`
}

type shopifyPriceSet struct {
	ShopMoney struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	} `json:"shop_money"`
}

type shopifyCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

type shopifyLineItem struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type shopifyFulfilled struct {
	TrackingNumber string `json:"tracking_number"`
}

// ==================== ShopifyAdapter ====================

// ShopifyAdapter Shopify Admin REST orders
// 鉴权: X-Shopify-Access-Token；分页: Link 头中的 page_info 游标，平台不返回总数
type ShopifyAdapter struct {
	client  *apiClient
	baseURL string
}

func NewShopifyAdapter(opts Options) Adapter {
	return &ShopifyAdapter{
		client:  newAPIClient(model.PlatformShopify, opts),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

func (a *ShopifyAdapter) Platform() string { return model.PlatformShopify }

func (a *ShopifyAdapter) FetchPage(ctx context.Context, cred *model.Credential, req PageRequest) (*Page, error) {
	limit := clampLimit(req.PageSize, shopifyMaxLimit)

	params := map[string]string{"limit": strconv.Itoa(limit)}
	if req.Cursor != "" {
		// 带 page_info 时 Shopify 不允许再附加过滤条件
		params["page_info"] = req.Cursor
	} else {
		params["status"] = "any"
		params["created_at_min"] = req.Start.UTC().Format(time.RFC3339)
		params["created_at_max"] = req.End.UTC().Format(time.RFC3339)
	}

	var body shopifyOrdersResponse
	r := a.client.http.R().
		SetHeader("X-Shopify-Access-Token", cred.AccessToken).
		SetQueryParams(params)
	resp, err := a.client.get(ctx, r, a.ordersURL(cred), &body)
	if err != nil {
		return nil, err
	}

	orders := make([]RawOrder, 0, len(body.Orders))
	for _, o := range body.Orders {
		orders = append(orders, toShopifyRaw(o))
	}

	next := nextPageInfo(resp.Header().Get("Link"))
	return &Page{
		Orders:     orders,
		NextCursor: next,
		Done:       next == "",
		Total:      -1,
		Limit:      limit,
	}, nil
}

func (a *ShopifyAdapter) ordersURL(cred *model.Credential) string {
	base := a.baseURL
	if base == "" {
		domain := cred.StoreID
		if !strings.Contains(domain, ".") {
			domain += ".myshopify.com"
		}
		base = "https://" + domain
	}
	return fmt.Sprintf("%s/admin/api/%s/orders.json", base, shopifyAPIVersion)
}

func toShopifyRaw(o shopifyOrder) RawOrder {
	raw := RawOrder{
		Currency: o.Currency,
		Status:   shopifyStatus(o),
	}
	if o.ID > 0 {
		raw.OrderID = strconv.FormatInt(o.ID, 10)
	}

	if t, err := time.Parse(time.RFC3339, o.CreatedAt); err == nil {
		raw.CreatedAt = t.UTC()
	} else if o.CreatedAt != "" {
		raw.Defect = fmt.Sprintf("created_at 格式错误: %s", o.CreatedAt)
	}

	shipping, err := parseMoney(o.TotalShippingPriceSet.ShopMoney.Amount)
	if err != nil {
		raw.Defect = err.Error()
	}
	raw.ShippingTotal = shipping

	raw.Buyer.Email = o.Email
	if c := o.Customer; c != nil {
		raw.Buyer.Name = strings.TrimSpace(c.FirstName + " " + c.LastName)
		if raw.Buyer.Email == "" {
			raw.Buyer.Email = c.Email
		}
	}
	if addr := o.ShippingAddress; addr != nil {
		raw.ShippingAddress = joinNonEmpty(", ", addr.Name, addr.Address1, addr.Address2,
			addr.City, addr.Province, addr.Zip, addr.Country)
	}
	for _, f := range o.Fulfillments {
		if f.TrackingNumber != "" {
			raw.TrackingNumber = f.TrackingNumber
		}
	}

	for _, li := range o.LineItems {
		price, err := parseMoney(li.Price)
		if err != nil {
			raw.Defect = err.Error()
		}
		item := RawItem{Title: li.Title, UnitPrice: price, Quantity: li.Quantity}
		if li.ID > 0 {
			item.ItemID = strconv.FormatInt(li.ID, 10)
		}
		raw.Items = append(raw.Items, item)
	}
	return raw
}

// shopifyStatus 取消 > 退款/作废 > 已发货 > 支付状态
func shopifyStatus(o shopifyOrder) string {
	if o.CancelledAt != nil && *o.CancelledAt != "" {
		return "cancelled"
	}
	switch o.FinancialStatus {
	case "refunded", "partially_refunded", "voided":
		return o.FinancialStatus
	}
	if o.FulfillmentStatus != nil && *o.FulfillmentStatus == "fulfilled" {
		return "fulfilled"
	}
	return o.FinancialStatus
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageInfo 从 Link 头解析下一页的 page_info
func nextPageInfo(link string) string {
	m := linkNextPattern.FindStringSubmatch(link)
	if len(m) != 2 {
		return ""
	}
	u, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("page_info")
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
