package normalize

import (
	"strings"

	"sales_ledger_v1/internal/model"
)

// statusTable 平台原始状态 -> 归一化状态
// key 均为小写，空格与连字符统一为下划线
var statusTable = map[string]string{
	// 已完成
	"complete":       model.SaleStatusCompleted,
	"completed":      model.SaleStatusCompleted,
	"paid":           model.SaleStatusCompleted,
	"fulfilled":      model.SaleStatusCompleted,
	"delivered":      model.SaleStatusCompleted,
	"shipped":        model.SaleStatusCompleted,
	"closed":         model.SaleStatusCompleted,
	"settled":        model.SaleStatusCompleted,
	"authorized":     model.SaleStatusCompleted,
	"partially_paid": model.SaleStatusCompleted,
	"success":        model.SaleStatusCompleted,

	// 处理中
	"pending":             model.SaleStatusPending,
	"processing":          model.SaleStatusPending,
	"open":                model.SaleStatusPending,
	"unpaid":              model.SaleStatusPending,
	"unshipped":           model.SaleStatusPending,
	"on_hold":             model.SaleStatusPending,
	"delivery_pending":    model.SaleStatusPending,
	"payment_processing":  model.SaleStatusPending,
	"payment_pending":     model.SaleStatusPending,
	"awaiting_payment":    model.SaleStatusPending,
	"awaiting_shipment":   model.SaleStatusPending,
	"in_progress":         model.SaleStatusPending,
	"not_started":         model.SaleStatusPending,
	"partially_fulfilled": model.SaleStatusPending,
	"unfulfilled":         model.SaleStatusPending,
	"checkout_draft":      model.SaleStatusPending,

	// 已取消
	"cancelled":      model.SaleStatusCancelled,
	"canceled":       model.SaleStatusCancelled,
	"voided":         model.SaleStatusCancelled,
	"void":           model.SaleStatusCancelled,
	"failed":         model.SaleStatusCancelled,
	"trash":          model.SaleStatusCancelled,
	"cancel_pending": model.SaleStatusCancelled,

	// 已退款
	"refunded":           model.SaleStatusRefunded,
	"partially_refunded": model.SaleStatusRefunded,
	"fully_refunded":     model.SaleStatusRefunded,
	"refund":             model.SaleStatusRefunded,
}

var statusReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Status 将平台原始状态映射为归一化状态，未知或为空时返回 unknown
func Status(raw string) string {
	key := statusReplacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
	if v, ok := statusTable[key]; ok {
		return v
	}
	return model.SaleStatusUnknown
}

// StatusPtr 可空状态的映射
func StatusPtr(raw *string) string {
	if raw == nil {
		return model.SaleStatusUnknown
	}
	return Status(*raw)
}
