package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_ledger_v1/internal/model"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

var (
	testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
)

// ==================== Etsy ====================

func TestEtsyAdapter_FetchPage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/application/shops/shop-1/receipts", r.URL.Path)
		assert.Equal(t, "app-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "1735689600", r.URL.Query().Get("min_created"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"count": 1,
			"results": [{
				"receipt_id": 1001,
				"buyer_email": "a@x.com",
				"name": "Alice",
				"status": "Completed",
				"create_timestamp": 1735776000,
				"formatted_address": " 1 Main St ",
				"grandtotal": {"amount": 2500, "divisor": 100, "currency_code": "USD"},
				"total_shipping_cost": {"amount": 500, "divisor": 100, "currency_code": "USD"},
				"shipments": [{"tracking_code": "TRK1"}],
				"transactions": [
					{"transaction_id": 11, "title": "Mug", "quantity": 2, "price": {"amount": 1000, "divisor": 100}}
				]
			}]
		}`))
	})

	a := NewEtsyAdapter(Options{BaseURL: srv.URL, ClientID: "app-key"})
	page, err := a.FetchPage(context.Background(),
		&model.Credential{StoreID: "shop-1", AccessToken: "tok"},
		PageRequest{Start: testStart, End: testEnd, PageSize: 500})
	require.NoError(t, err)

	assert.True(t, page.Done)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, etsyMaxLimit, page.Limit)
	require.Len(t, page.Orders, 1)

	o := page.Orders[0]
	assert.Equal(t, "1001", o.OrderID)
	assert.Equal(t, 5.0, o.ShippingTotal)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, "1 Main St", o.ShippingAddress)
	assert.Equal(t, "TRK1", o.TrackingNumber)
	require.Len(t, o.Items, 1)
	assert.Equal(t, RawItem{ItemID: "11", Title: "Mug", UnitPrice: 10, Quantity: 2}, o.Items[0])
}

// ==================== Shopify ====================

func TestShopifyAdapter_FetchPageFollowsLink(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/orders.json", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Shopify-Access-Token"))

		q := r.URL.Query()
		if q.Get("page_info") == "" {
			assert.Equal(t, "any", q.Get("status"))
			w.Header().Set("Link", `<https://shop.myshopify.com/admin/api/2024-10/orders.json?limit=2&page_info=abc>; rel="next"`)
			_, _ = w.Write([]byte(`{"orders":[{
				"id": 1, "email": "b@x.com", "created_at": "2025-01-02T10:00:00-05:00",
				"financial_status": "paid", "fulfillment_status": "fulfilled", "currency": "USD",
				"total_shipping_price_set": {"shop_money": {"amount": "4.00"}},
				"customer": {"first_name": "Bob", "last_name": "B"},
				"line_items": [{"id": 7, "title": "Hat", "price": "12.50", "quantity": 1}]
			}]}`))
			return
		}
		assert.Empty(t, q.Get("status"))
		assert.Equal(t, "abc", q.Get("page_info"))
		_, _ = w.Write([]byte(`{"orders":[]}`))
	})

	a := NewShopifyAdapter(Options{BaseURL: srv.URL})
	cred := &model.Credential{StoreID: "shop", AccessToken: "tok"}

	first, err := a.FetchPage(context.Background(), cred, PageRequest{Start: testStart, End: testEnd, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, "abc", first.NextCursor)
	assert.False(t, first.Done)
	assert.Equal(t, -1, first.Total)

	o := first.Orders[0]
	assert.Equal(t, "fulfilled", o.Status)
	assert.Equal(t, "Bob B", o.Buyer.Name)
	assert.Equal(t, time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC), o.CreatedAt)
	assert.Equal(t, 4.0, o.ShippingTotal)
	assert.Equal(t, 12.5, o.Items[0].UnitPrice)

	second, err := a.FetchPage(context.Background(), cred, PageRequest{Cursor: first.NextCursor, PageSize: 2})
	require.NoError(t, err)
	assert.True(t, second.Done)
	assert.Empty(t, second.Orders)
}

func TestShopifyStatus(t *testing.T) {
	cancelled := "2025-01-01T00:00:00Z"
	fulfilled := "fulfilled"
	tests := []struct {
		name  string
		order shopifyOrder
		want  string
	}{
		{"取消优先", shopifyOrder{CancelledAt: &cancelled, FinancialStatus: "paid"}, "cancelled"},
		{"退款", shopifyOrder{FinancialStatus: "refunded", FulfillmentStatus: &fulfilled}, "refunded"},
		{"已发货", shopifyOrder{FinancialStatus: "paid", FulfillmentStatus: &fulfilled}, "fulfilled"},
		{"待付款", shopifyOrder{FinancialStatus: "pending"}, "pending"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shopifyStatus(tt.order); got != tt.want {
				t.Errorf("shopifyStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShopifyAdapter_BadMoneyMarksDefect(t *testing.T) {
	raw := toShopifyRaw(shopifyOrder{
		ID:        9,
		CreatedAt: "2025-01-02T10:00:00Z",
		LineItems: []shopifyLineItem{{ID: 1, Title: "x", Price: "abc", Quantity: 1}},
	})
	assert.NotEmpty(t, raw.Defect)
}

// ==================== eBay ====================

func TestEbayAdapter_FetchPage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sell/fulfillment/v1/order", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "creationdate:[2025-01-01T00:00:00.000Z..2025-01-08T00:00:00.000Z]", r.URL.Query().Get("filter"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))

		_, _ = w.Write([]byte(`{
			"total": 1, "limit": 200, "offset": 0, "next": "",
			"orders": [{
				"orderId": "E-1",
				"creationDate": "2025-01-03T08:00:00.000Z",
				"orderFulfillmentStatus": "FULFILLED",
				"orderPaymentStatus": "PAID",
				"buyer": {"username": "carol99"},
				"pricingSummary": {"deliveryCost": {"value": "3.00", "currency": "GBP"}, "total": {"value": "33.00", "currency": "GBP"}},
				"lineItems": [{"lineItemId": "L1", "title": "Scarf", "quantity": 3, "lineItemCost": {"value": "30.00"}}]
			}]
		}`))
	})

	a := NewEbayAdapter(Options{BaseURL: srv.URL})
	page, err := a.FetchPage(context.Background(), &model.Credential{AccessToken: "tok"},
		PageRequest{Start: testStart, End: testEnd, PageSize: 1000})
	require.NoError(t, err)

	assert.True(t, page.Done)
	require.Len(t, page.Orders, 1)
	o := page.Orders[0]
	assert.Equal(t, "carol99", o.Buyer.Name)
	assert.Equal(t, "GBP", o.Currency)
	assert.Equal(t, "FULFILLED", o.Status)
	assert.Equal(t, 10.0, o.Items[0].UnitPrice)
	assert.Equal(t, 3.0, o.ShippingTotal)
}

func TestEbayStatus_CancelWins(t *testing.T) {
	o := ebayOrder{OrderFulfillmentStatus: "FULFILLED", OrderPaymentStatus: "FULLY_REFUNDED"}
	assert.Equal(t, "FULLY_REFUNDED", ebayStatus(o))

	o.CancelStatus.CancelState = "CANCELED"
	assert.Equal(t, "CANCELED", ebayStatus(o))
}

// ==================== WooCommerce ====================

func TestWooCommerceAdapter_FetchPage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck", user)
		assert.Equal(t, "cs", pass)
		assert.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "2025-01-01T00:00:00", r.URL.Query().Get("after"))
		assert.Equal(t, "true", r.URL.Query().Get("dates_are_gmt"))

		w.Header().Set("X-WP-Total", "3")
		w.Header().Set("X-WP-TotalPages", "2")
		_, _ = w.Write([]byte(`[{
			"id": 55, "status": "on-hold", "currency": "EUR",
			"date_created_gmt": "2025-01-04T12:00:00",
			"shipping_total": "6.00",
			"billing": {"first_name": "Dan", "last_name": "D", "email": "d@x.com"},
			"shipping": {"address_1": "2 Side Rd", "city": "Paris"},
			"line_items": [{"id": 3, "name": "Cup", "quantity": 2, "subtotal": "18.00"}],
			"meta_data": [{"key": "_tracking_number", "value": "WT-9"}]
		}]`))
	})

	a := NewWooCommerceAdapter(Options{BaseURL: srv.URL})
	page, err := a.FetchPage(context.Background(),
		&model.Credential{StoreID: "shop.example", PublicKey: "ck", SecretKey: "cs"},
		PageRequest{Start: testStart, End: testEnd, Cursor: "2", PageSize: 2})
	require.NoError(t, err)

	assert.True(t, page.Done)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "3", page.NextCursor)

	o := page.Orders[0]
	assert.Equal(t, "55", o.OrderID)
	assert.Equal(t, "Dan D", o.Buyer.Name)
	assert.Equal(t, "2 Side Rd, Paris", o.ShippingAddress)
	assert.Equal(t, "WT-9", o.TrackingNumber)
	assert.Equal(t, 9.0, o.Items[0].UnitPrice)
	assert.Equal(t, time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC), o.CreatedAt)
}

func TestWooCommerceAdapter_MissingKeys(t *testing.T) {
	a := NewWooCommerceAdapter(Options{})
	_, err := a.FetchPage(context.Background(), &model.Credential{StoreID: "shop"}, PageRequest{})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

// ==================== 错误分类 ====================

func TestAdapters_ClassifyHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthExpired},
		{http.StatusForbidden, ErrInvalidCredential},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrTransient},
		{http.StatusGatewayTimeout, ErrTransient},
		{http.StatusBadRequest, ErrPermanent},
		{http.StatusNotFound, ErrPermanent},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"x"}`))
			})

			a := NewEbayAdapter(Options{BaseURL: srv.URL})
			_, err := a.FetchPage(context.Background(), &model.Credential{AccessToken: "t"}, PageRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, 2*time.Second, apiErr.RetryAfter)
			}
		})
	}
}

func TestAdapters_MalformedBodyIsPermanent(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	a := NewEtsyAdapter(Options{BaseURL: srv.URL})
	_, err := a.FetchPage(context.Background(), &model.Credential{StoreID: "s"}, PageRequest{})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.False(t, IsRetryable(err))
}

func TestAdapters_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	a := NewEbayAdapter(Options{BaseURL: url, Timeout: time.Second})
	_, err := a.FetchPage(context.Background(), &model.Credential{}, PageRequest{})
	assert.ErrorIs(t, err, ErrTransient)
	assert.True(t, IsRetryable(err))
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry(map[string]Options{model.PlatformEtsy: {ClientID: "k"}})

	a, err := r.New(model.PlatformEtsy)
	require.NoError(t, err)
	assert.Equal(t, model.PlatformEtsy, a.Platform())
	assert.Equal(t, "k", r.Options(model.PlatformEtsy).ClientID)

	_, err = r.New("amazon")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Equal(t, []string{"ebay", "etsy", "shopify", "woocommerce"}, r.Names())
}
