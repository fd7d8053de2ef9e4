package platform

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sales_ledger_v1/internal/model"
)

const ebayMaxLimit = 200

// ==================== eBay 原始结构 ====================

type ebayOrdersResponse struct {
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Next   string      `json:"next"`
	Orders []ebayOrder `json:"orders"`
}

type ebayOrder struct {
	OrderID                      string                 `json:"orderId"`
	CreationDate                 string                 `json:"creationDate"`
	OrderFulfillmentStatus       string                 `json:"orderFulfillmentStatus"`
	OrderPaymentStatus           string                 `json:"orderPaymentStatus"`
	CancelStatus                 ebayCancelStatus       `json:"cancelStatus"`
	Buyer                        ebayBuyer              `json:"buyer"`
	PricingSummary               ebayPricingSummary     `json:"pricingSummary"`
	LineItems                    []ebayLineItem         `json:"lineItems"`
	FulfillmentStartInstructions []ebayFulfillmentStart `json:"fulfillmentStartInstructions"`
}

type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ebayCancelStatus struct {
	CancelState string `json:"cancelState"`
}

type ebayBuyer struct {
	Username                 string `json:"username"`
	BuyerRegistrationAddress struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	} `json:"buyerRegistrationAddress"`
}

type ebayPricingSummary struct {
	DeliveryCost ebayAmount `json:"deliveryCost"`
	Total        ebayAmount `json:"total"`
}

type ebayLineItem struct {
	LineItemID   string     `json:"lineItemId"`
	Title        string     `json:"title"`
	Quantity     int        `json:"quantity"`
	LineItemCost ebayAmount `json:"lineItemCost"` // 行总价（单价 × 数量）
}

type ebayFulfillmentStart struct {
	ShippingStep struct {
		ShipTo struct {
			FullName       string `json:"fullName"`
			ContactAddress struct {
				AddressLine1    string `json:"addressLine1"`
				AddressLine2    string `json:"addressLine2"`
				City            string `json:"city"`
				StateOrProvince string `json:"stateOrProvince"`
				PostalCode      string `json:"postalCode"`
				CountryCode     string `json:"countryCode"`
			} `json:"contactAddress"`
		} `json:"shipTo"`
	} `json:"shippingStep"`
}

// ==================== EbayAdapter ====================

// EbayAdapter eBay Sell Fulfillment API getOrders
type EbayAdapter struct {
	client *apiClient
}

func NewEbayAdapter(opts Options) Adapter {
	return &EbayAdapter{client: newAPIClient(model.PlatformEbay, opts)}
}

func (a *EbayAdapter) Platform() string { return model.PlatformEbay }

func (a *EbayAdapter) FetchPage(ctx context.Context, cred *model.Credential, req PageRequest) (*Page, error) {
	limit := clampLimit(req.PageSize, ebayMaxLimit)
	offset := cursorInt(req.Cursor)

	filter := fmt.Sprintf("creationdate:[%s..%s]",
		req.Start.UTC().Format("2006-01-02T15:04:05.000Z"),
		req.End.UTC().Format("2006-01-02T15:04:05.000Z"))

	var body ebayOrdersResponse
	r := a.client.http.R().
		SetAuthToken(cred.AccessToken).
		SetQueryParams(map[string]string{
			"filter": filter,
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		})
	if _, err := a.client.get(ctx, r, "/sell/fulfillment/v1/order", &body); err != nil {
		return nil, err
	}

	orders := make([]RawOrder, 0, len(body.Orders))
	for _, o := range body.Orders {
		orders = append(orders, toEbayRaw(o))
	}

	next := offset + len(body.Orders)
	return &Page{
		Orders:     orders,
		NextCursor: strconv.Itoa(next),
		Done:       body.Next == "" || len(body.Orders) == 0,
		Total:      body.Total,
		Limit:      limit,
	}, nil
}

func toEbayRaw(o ebayOrder) RawOrder {
	raw := RawOrder{
		OrderID:  o.OrderID,
		Currency: o.PricingSummary.Total.Currency,
		Status:   ebayStatus(o),
		Buyer: Buyer{
			Name:  o.Buyer.BuyerRegistrationAddress.FullName,
			Email: o.Buyer.BuyerRegistrationAddress.Email,
		},
	}
	if raw.Buyer.Name == "" {
		raw.Buyer.Name = o.Buyer.Username
	}

	if t, err := time.Parse(time.RFC3339, o.CreationDate); err == nil {
		raw.CreatedAt = t.UTC()
	} else if o.CreationDate != "" {
		raw.Defect = fmt.Sprintf("creationDate 格式错误: %s", o.CreationDate)
	}

	shipping, err := parseMoney(o.PricingSummary.DeliveryCost.Value)
	if err != nil {
		raw.Defect = err.Error()
	}
	raw.ShippingTotal = shipping

	if len(o.FulfillmentStartInstructions) > 0 {
		to := o.FulfillmentStartInstructions[0].ShippingStep.ShipTo
		addr := to.ContactAddress
		raw.ShippingAddress = joinNonEmpty(", ", to.FullName, addr.AddressLine1, addr.AddressLine2,
			addr.City, addr.StateOrProvince, addr.PostalCode, addr.CountryCode)
	}

	for _, li := range o.LineItems {
		lineTotal, err := parseMoney(li.LineItemCost.Value)
		if err != nil {
			raw.Defect = err.Error()
		}
		raw.Items = append(raw.Items, RawItem{
			ItemID:    li.LineItemID,
			Title:     li.Title,
			UnitPrice: unitPrice(lineTotal, li.Quantity),
			Quantity:  li.Quantity,
		})
	}
	return raw
}

// ebayStatus 取消 > 退款 > 履约状态
func ebayStatus(o ebayOrder) string {
	if o.CancelStatus.CancelState == "CANCELED" {
		return "CANCELED"
	}
	switch o.OrderPaymentStatus {
	case "FULLY_REFUNDED", "PARTIALLY_REFUNDED", "FAILED":
		return o.OrderPaymentStatus
	}
	return o.OrderFulfillmentStatus
}
