package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sales_ledger_v1/internal/model"
)

const wooMaxPerPage = 100

// ==================== WooCommerce 原始结构 ====================

type wooOrder struct {
	ID             int64         `json:"id"`
	Status         string        `json:"status"`
	Currency       string        `json:"currency"`
	DateCreatedGMT string        `json:"date_created_gmt"`
	ShippingTotal  string        `json:"shipping_total"`
	Billing        wooContact    `json:"billing"`
	Shipping       wooContact    `json:"shipping"`
	LineItems      []wooLineItem `json:"line_items"`
	MetaData       []wooMeta     `json:"meta_data"`
}

type wooContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
}

type wooLineItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Subtotal string `json:"subtotal"` // 行小计（折扣前）
}

type wooMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ==================== WooCommerceAdapter ====================

// WooCommerceAdapter WooCommerce REST v3
// store_id 为站点地址；鉴权为 consumer key/secret 的 Basic Auth；分页: page 页码 + X-WP-Total
type WooCommerceAdapter struct {
	client  *apiClient
	baseURL string
}

func NewWooCommerceAdapter(opts Options) Adapter {
	return &WooCommerceAdapter{
		client:  newAPIClient(model.PlatformWooCommerce, opts),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

func (a *WooCommerceAdapter) Platform() string { return model.PlatformWooCommerce }

func (a *WooCommerceAdapter) FetchPage(ctx context.Context, cred *model.Credential, req PageRequest) (*Page, error) {
	if cred.PublicKey == "" || cred.SecretKey == "" {
		return nil, &APIError{Platform: model.PlatformWooCommerce, Kind: ErrInvalidCredential,
			cause: fmt.Errorf("缺少 consumer key/secret")}
	}

	perPage := clampLimit(req.PageSize, wooMaxPerPage)
	page := cursorInt(req.Cursor)
	if page < 1 {
		page = 1
	}

	var body []wooOrder
	// 不带 dates_are_gmt 时 after/before 按站点本地时区解析
	r := a.client.http.R().
		SetBasicAuth(cred.PublicKey, cred.SecretKey).
		SetQueryParams(map[string]string{
			"after":         req.Start.UTC().Format("2006-01-02T15:04:05"),
			"before":        req.End.UTC().Format("2006-01-02T15:04:05"),
			"dates_are_gmt": "true",
			"per_page":      strconv.Itoa(perPage),
			"page":          strconv.Itoa(page),
			"orderby":       "date",
			"order":         "asc",
		})
	resp, err := a.client.get(ctx, r, a.ordersURL(cred), &body)
	if err != nil {
		return nil, err
	}

	orders := make([]RawOrder, 0, len(body))
	for _, o := range body {
		orders = append(orders, toWooRaw(o))
	}

	total := -1
	if v, err := strconv.Atoi(resp.Header().Get("X-WP-Total")); err == nil {
		total = v
	}
	totalPages, _ := strconv.Atoi(resp.Header().Get("X-WP-TotalPages"))

	return &Page{
		Orders:     orders,
		NextCursor: strconv.Itoa(page + 1),
		Done:       len(body) == 0 || (totalPages > 0 && page >= totalPages),
		Total:      total,
		Limit:      perPage,
	}, nil
}

func (a *WooCommerceAdapter) ordersURL(cred *model.Credential) string {
	base := a.baseURL
	if base == "" {
		base = strings.TrimRight(cred.StoreID, "/")
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "https://" + base
		}
	}
	return base + "/wp-json/wc/v3/orders"
}

func toWooRaw(o wooOrder) RawOrder {
	raw := RawOrder{
		Currency: o.Currency,
		Status:   o.Status,
		Buyer: Buyer{
			Name:  strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName),
			Email: o.Billing.Email,
		},
		ShippingAddress: joinNonEmpty(", ",
			strings.TrimSpace(o.Shipping.FirstName+" "+o.Shipping.LastName),
			o.Shipping.Address1, o.Shipping.Address2, o.Shipping.City,
			o.Shipping.State, o.Shipping.Postcode, o.Shipping.Country),
		TrackingNumber: wooTrackingNumber(o.MetaData),
	}
	if o.ID > 0 {
		raw.OrderID = strconv.FormatInt(o.ID, 10)
	}

	// date_created_gmt 不带时区后缀
	if t, err := time.Parse("2006-01-02T15:04:05", o.DateCreatedGMT); err == nil {
		raw.CreatedAt = t.UTC()
	} else if o.DateCreatedGMT != "" {
		raw.Defect = fmt.Sprintf("date_created_gmt 格式错误: %s", o.DateCreatedGMT)
	}

	shipping, err := parseMoney(o.ShippingTotal)
	if err != nil {
		raw.Defect = err.Error()
	}
	raw.ShippingTotal = shipping

	for _, li := range o.LineItems {
		subtotal, err := parseMoney(li.Subtotal)
		if err != nil {
			raw.Defect = err.Error()
		}
		item := RawItem{
			Title:     li.Name,
			UnitPrice: unitPrice(subtotal, li.Quantity),
			Quantity:  li.Quantity,
		}
		if li.ID > 0 {
			item.ItemID = strconv.FormatInt(li.ID, 10)
		}
		raw.Items = append(raw.Items, item)
	}
	return raw
}

// wooTrackingNumber 常见物流插件写入的订单元数据
func wooTrackingNumber(meta []wooMeta) string {
	for _, m := range meta {
		switch m.Key {
		case "_tracking_number", "tracking_number", "_wc_shipment_tracking_number":
			if s, ok := m.Value.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
