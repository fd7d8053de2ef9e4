package normalize

import (
	"github.com/shopspring/decimal"

	"sales_ledger_v1/internal/platform"
)

// AllocateShipping 按件数平摊订单运费，返回每行含运费的单价
// 总件数为 0 时不分摊，原样返回单价且 ok=false
func AllocateShipping(shippingTotal float64, items []platform.RawItem) (prices []float64, ok bool) {
	prices = make([]float64, len(items))

	var units int64
	for i, it := range items {
		prices[i] = it.UnitPrice
		units += int64(it.Quantity)
	}
	if units == 0 {
		return prices, false
	}

	perUnit := decimal.NewFromFloat(shippingTotal).Div(decimal.NewFromInt(units))
	for i, it := range items {
		prices[i] = decimal.NewFromFloat(it.UnitPrice).Add(perUnit).InexactFloat64()
	}
	return prices, true
}
