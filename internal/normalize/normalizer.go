package normalize

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/platform"
)

// ErrAnomaly 归一化异常，对应记录被跳过
var ErrAnomaly = errors.New("normalization anomaly")

// Anomaly 单个订单或订单行的归一化异常
// ItemIndex < 0 表示整单异常
type Anomaly struct {
	OrderID   string
	ItemIndex int
	Reason    string
	Skipped   bool // false 表示记录仍然写入，仅作提示
}

func (a *Anomaly) Error() string {
	if a.ItemIndex < 0 {
		return fmt.Sprintf("order %s: %s", a.OrderID, a.Reason)
	}
	return fmt.Sprintf("order %s item %d: %s", a.OrderID, a.ItemIndex, a.Reason)
}

func (a *Anomaly) Unwrap() error { return ErrAnomaly }

// Result 一批订单的归一化结果
type Result struct {
	Sales     []model.Sale
	Anomalies []*Anomaly
}

// Skipped 被跳过的记录数，整单异常计 1
func (r *Result) Skipped() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Skipped {
			n++
		}
	}
	return n
}

// Normalizer 将平台原始订单转换为标准销售明细
type Normalizer struct {
	logger *zap.Logger
}

func New(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{logger: log}
}

// Normalize 逐单处理；异常订单或订单行被跳过并记录，其余继续
func (n *Normalizer) Normalize(userID int64, platformName, batchID string, orders []platform.RawOrder) *Result {
	res := &Result{}
	for _, o := range orders {
		sales, anomalies := n.normalizeOrder(userID, platformName, batchID, o)
		res.Sales = append(res.Sales, sales...)
		res.Anomalies = append(res.Anomalies, anomalies...)
	}

	for _, a := range res.Anomalies {
		n.logger.Warn("[Normalizer] 归一化异常",
			zap.String("platform", platformName),
			zap.String("order_id", a.OrderID),
			zap.Int("item_index", a.ItemIndex),
			zap.Bool("skipped", a.Skipped),
			zap.String("reason", a.Reason))
	}
	return res
}

func (n *Normalizer) normalizeOrder(userID int64, platformName, batchID string, o platform.RawOrder) ([]model.Sale, []*Anomaly) {
	if reason := validateOrder(o); reason != "" {
		return nil, []*Anomaly{{OrderID: o.OrderID, ItemIndex: -1, Reason: reason, Skipped: true}}
	}

	var anomalies []*Anomaly

	// 先剔除非法行，运费只在有效行之间分摊
	valid := make([]platform.RawItem, 0, len(o.Items))
	indexes := make([]int, 0, len(o.Items))
	for i, it := range o.Items {
		if reason := validateItem(it); reason != "" {
			anomalies = append(anomalies, &Anomaly{OrderID: o.OrderID, ItemIndex: i, Reason: reason, Skipped: true})
			continue
		}
		valid = append(valid, it)
		indexes = append(indexes, i)
	}
	if len(valid) == 0 {
		return nil, anomalies
	}

	prices, ok := AllocateShipping(o.ShippingTotal, valid)
	if !ok {
		anomalies = append(anomalies, &Anomaly{
			OrderID:   o.OrderID,
			ItemIndex: -1,
			Reason:    fmt.Sprintf("订单总件数为 0，运费 %.2f 未分摊", o.ShippingTotal),
		})
	}

	status := Status(o.Status)
	sales := make([]model.Sale, 0, len(valid))
	for k, it := range valid {
		sales = append(sales, model.Sale{
			UserID:           userID,
			Platform:         platformName,
			OrderID:          o.OrderID,
			ItemID:           ItemID(o.OrderID, indexes[k], it.ItemID),
			ItemTitle:        strings.TrimSpace(it.Title),
			Quantity:         it.Quantity,
			Price:            prices[k],
			Currency:         strings.ToUpper(strings.TrimSpace(o.Currency)),
			BuyerName:        strings.TrimSpace(o.Buyer.Name),
			BuyerEmail:       strings.ToLower(strings.TrimSpace(o.Buyer.Email)),
			SaleDate:         o.CreatedAt.UTC(),
			Status:           o.Status,
			NormalizedStatus: status,
			ShippingAddress:  o.ShippingAddress,
			TrackingNumber:   o.TrackingNumber,
			LastSyncRun:      batchID,
		})
	}
	return sales, anomalies
}

// validateOrder 返回整单异常原因，合法时返回空串
func validateOrder(o platform.RawOrder) string {
	switch {
	case o.Defect != "":
		return o.Defect
	case strings.TrimSpace(o.OrderID) == "":
		return "缺少 order_id"
	case o.CreatedAt.IsZero():
		return "缺少下单时间"
	case len(o.Items) == 0:
		return "订单没有明细行"
	case o.ShippingTotal < 0:
		return fmt.Sprintf("运费为负数: %.2f", o.ShippingTotal)
	}
	return ""
}

func validateItem(it platform.RawItem) string {
	switch {
	case it.Quantity < 0:
		return fmt.Sprintf("数量为负数: %d", it.Quantity)
	case it.UnitPrice < 0:
		return fmt.Sprintf("单价为负数: %.2f", it.UnitPrice)
	}
	return ""
}
