package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/repository"
)

const maxTopProducts = 100

// ErrInvalidWindow 统计窗口参数错误
var ErrInvalidWindow = errors.New("invalid analytics window")

// AnalyticsOptions 分析参数
type AnalyticsOptions struct {
	HighValueThreshold  float64
	NewCustomerLookback time.Duration // 全部时间查询时的新客户回溯窗口，0 表示不限
	TopProductsLimit    int
	Location            *time.Location
	ExcludeCancelled    bool
}

// Window 统计窗口，Start/End 为空表示全部时间
type Window struct {
	Start *time.Time
	End   *time.Time
}

// AllTime 是否未限定时间
func (w Window) AllTime() bool { return w.Start == nil && w.End == nil }

// ==================== AnalyticsService ====================

// AnalyticsService 只读统计，不修改账本
type AnalyticsService struct {
	sales  repository.SaleRepository
	opts   AnalyticsOptions
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalyticsService(sales repository.SaleRepository, opts AnalyticsOptions, log *zap.Logger) *AnalyticsService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TopProductsLimit <= 0 {
		opts.TopProductsLimit = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsService{sales: sales, opts: opts, logger: log.Named("analytics"), now: time.Now}
}

// ResolveWindow start/end 优先，其次 days，都为空表示全部时间
// 日期按配置时区解析，end 包含当天
func (s *AnalyticsService) ResolveWindow(q dto.AnalyticsQuery) (Window, error) {
	var w Window
	loc := s.opts.Location

	if q.StartDate != "" || q.EndDate != "" {
		if q.StartDate != "" {
			t, err := time.ParseInLocation("2006-01-02", q.StartDate, loc)
			if err != nil {
				return w, fmt.Errorf("%w: start_date %q", ErrInvalidWindow, q.StartDate)
			}
			w.Start = &t
		}
		if q.EndDate != "" {
			t, err := time.ParseInLocation("2006-01-02", q.EndDate, loc)
			if err != nil {
				return w, fmt.Errorf("%w: end_date %q", ErrInvalidWindow, q.EndDate)
			}
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
			w.End = &t
		}
		if w.Start != nil && w.End != nil && w.Start.After(*w.End) {
			return w, fmt.Errorf("%w: start_date 晚于 end_date", ErrInvalidWindow)
		}
		return w, nil
	}

	if q.Days < 0 {
		return w, fmt.Errorf("%w: days 不能为负数", ErrInvalidWindow)
	}
	if q.Days > 0 {
		end := s.now()
		start := end.Add(-time.Duration(q.Days) * 24 * time.Hour)
		w.Start, w.End = &start, &end
	}
	return w, nil
}

func (s *AnalyticsService) scope(userID int64, w Window) repository.SaleWindow {
	sw := repository.SaleWindow{UserID: userID, Start: utcPtr(w.Start), End: utcPtr(w.End)}
	if s.opts.ExcludeCancelled {
		sw.ExcludeStatuses = []string{model.SaleStatusCancelled, model.SaleStatusRefunded}
	}
	return sw
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ==================== 趋势 ====================

// Trend 按天汇总收入与订单数
func (s *AnalyticsService) Trend(ctx context.Context, userID int64, w Window) (*dto.TrendResponse, error) {
	rows, err := s.sales.ListForAnalytics(ctx, s.scope(userID, w))
	if err != nil {
		return nil, err
	}

	type dayAgg struct {
		point  dto.TrendPoint
		orders map[orderKey]struct{}
	}
	days := map[string]*dayAgg{}
	allOrders := map[orderKey]struct{}{}

	resp := &dto.TrendResponse{Start: w.Start, End: w.End, Points: []dto.TrendPoint{}}
	for i := range rows {
		r := &rows[i]
		key := r.SaleDate.In(s.opts.Location).Format("2006-01-02")
		agg, ok := days[key]
		if !ok {
			agg = &dayAgg{point: dto.TrendPoint{Date: key}, orders: map[orderKey]struct{}{}}
			days[key] = agg
		}
		agg.point.Revenue += r.Revenue()
		agg.point.Units += r.Quantity
		agg.orders[orderKey{r.Platform, r.OrderID}] = struct{}{}
		allOrders[orderKey{r.Platform, r.OrderID}] = struct{}{}
		resp.TotalRevenue += r.Revenue()
	}

	for _, agg := range days {
		agg.point.Orders = len(agg.orders)
		agg.point.Revenue = round2(agg.point.Revenue)
		resp.Points = append(resp.Points, agg.point)
	}
	sort.Slice(resp.Points, func(i, j int) bool { return resp.Points[i].Date < resp.Points[j].Date })

	resp.TotalRevenue = round2(resp.TotalRevenue)
	resp.TotalOrders = len(allOrders)
	return resp, nil
}

// ==================== 平台 / 商品 ====================

// Platforms 各平台收入、明细行数、件数、订单数
func (s *AnalyticsService) Platforms(ctx context.Context, userID int64, w Window) ([]repository.PlatformStat, error) {
	stats, err := s.sales.PlatformBreakdown(ctx, s.scope(userID, w))
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Revenue = round2(stats[i].Revenue)
	}
	return stats, nil
}

// TopProducts 收入最高的商品，limit <= 0 使用默认值，上限 100
func (s *AnalyticsService) TopProducts(ctx context.Context, userID int64, w Window, limit int) ([]repository.ProductStat, error) {
	if limit <= 0 {
		limit = s.opts.TopProductsLimit
	}
	if limit > maxTopProducts {
		limit = maxTopProducts
	}

	stats, err := s.sales.TopProducts(ctx, s.scope(userID, w), limit)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Revenue = round2(stats[i].Revenue)
	}
	return stats, nil
}

// ==================== 客户 ====================

type orderKey struct {
	platform string
	orderID  string
}

type customerKey struct {
	email string
	name  string
}

type customerAgg struct {
	dto.CustomerAggregate
	orders map[orderKey]struct{}
}

// Customers 按 (buyer_email, buyer_name) 聚合窗口内的客户并分类
// 新客户: 历史首单落在新客户窗口内；全部时间查询时新客户窗口为 [now - lookback, now]
func (s *AnalyticsService) Customers(ctx context.Context, userID int64, w Window) (*dto.CustomersResponse, error) {
	rows, err := s.sales.ListForAnalytics(ctx, s.scope(userID, w))
	if err != nil {
		return nil, err
	}

	groups := map[customerKey]*customerAgg{}
	order := make([]customerKey, 0)
	for i := range rows {
		r := &rows[i]
		if r.BuyerName == "" {
			continue
		}
		key := customerKey{r.BuyerEmail, r.BuyerName}
		agg, ok := groups[key]
		if !ok {
			agg = &customerAgg{
				CustomerAggregate: dto.CustomerAggregate{
					Email:      r.BuyerEmail,
					Name:       r.BuyerName,
					FirstOrder: r.SaleDate,
					LastOrder:  r.SaleDate,
				},
				orders: map[orderKey]struct{}{},
			}
			groups[key] = agg
			order = append(order, key)
		}
		agg.orders[orderKey{r.Platform, r.OrderID}] = struct{}{}
		agg.TotalSpent += r.Revenue()
		if r.SaleDate.Before(agg.FirstOrder) {
			agg.FirstOrder = r.SaleDate
		}
		if r.SaleDate.After(agg.LastOrder) {
			agg.LastOrder = r.SaleDate
		}
	}

	firstEver, err := s.firstOrders(ctx, userID, w, groups)
	if err != nil {
		return nil, err
	}
	newStart, newEnd := s.newCustomerWindow(w)

	resp := &dto.CustomersResponse{}
	for _, key := range order {
		agg := groups[key]
		agg.OrderCount = len(agg.orders)
		agg.TotalSpent = round2(agg.TotalSpent)
		if agg.OrderCount > 0 {
			agg.AvgOrderValue = round2(agg.TotalSpent / float64(agg.OrderCount))
		}
		agg.Segment = s.classify(agg.OrderCount, agg.TotalSpent)

		m := &resp.Metrics
		m.TotalCustomers++
		switch agg.Segment {
		case dto.CustomerFrequent:
			m.FrequentBuyers++
		case dto.CustomerHighValue:
			m.HighValue++
		default:
			m.Regular++
		}
		if agg.OrderCount > 1 {
			m.ReturningCustomers++
		}
		if inWindow(firstEver[key], newStart, newEnd) {
			m.NewCustomers++
		}
		resp.Customers = append(resp.Customers, agg.CustomerAggregate)
	}

	if resp.Metrics.TotalCustomers > 0 {
		resp.Metrics.RepeatRate = int(math.Round(
			float64(resp.Metrics.ReturningCustomers) / float64(resp.Metrics.TotalCustomers) * 100))
	}

	sort.SliceStable(resp.Customers, func(i, j int) bool {
		return resp.Customers[i].TotalSpent > resp.Customers[j].TotalSpent
	})
	if resp.Customers == nil {
		resp.Customers = []dto.CustomerAggregate{}
	}
	return resp, nil
}

// classify 高频 > 高价值 > 普通
func (s *AnalyticsService) classify(orderCount int, spent float64) string {
	switch {
	case orderCount >= 2:
		return dto.CustomerFrequent
	case spent >= s.opts.HighValueThreshold:
		return dto.CustomerHighValue
	default:
		return dto.CustomerRegular
	}
}

// newCustomerWindow 显式窗口直接使用；全部时间按回溯配置，回溯为 0 时不限
func (s *AnalyticsService) newCustomerWindow(w Window) (*time.Time, *time.Time) {
	if !w.AllTime() {
		return w.Start, w.End
	}
	if s.opts.NewCustomerLookback <= 0 {
		return nil, nil
	}
	end := s.now()
	start := end.Add(-s.opts.NewCustomerLookback)
	return &start, &end
}

// firstOrders 客户截至窗口结束的历史首单时间
func (s *AnalyticsService) firstOrders(ctx context.Context, userID int64, w Window, groups map[customerKey]*customerAgg) (map[customerKey]time.Time, error) {
	first := make(map[customerKey]time.Time, len(groups))
	if w.Start == nil {
		for k, agg := range groups {
			first[k] = agg.FirstOrder
		}
		return first, nil
	}

	history, err := s.sales.ListForAnalytics(ctx, s.scope(userID, Window{End: w.End}))
	if err != nil {
		return nil, err
	}
	for i := range history {
		r := &history[i]
		key := customerKey{r.BuyerEmail, r.BuyerName}
		if _, ok := groups[key]; !ok {
			continue
		}
		if t, ok := first[key]; !ok || r.SaleDate.Before(t) {
			first[key] = r.SaleDate
		}
	}
	return first, nil
}

func inWindow(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
