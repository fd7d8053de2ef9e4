package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/repository"
)

// ErrInvalidQuery 列表查询参数错误
var ErrInvalidQuery = errors.New("invalid query")

var saleStatuses = map[string]struct{}{
	model.SaleStatusCompleted: {},
	model.SaleStatusPending:   {},
	model.SaleStatusCancelled: {},
	model.SaleStatusRefunded:  {},
	model.SaleStatusUnknown:   {},
}

// SaleService 账本只读查询
type SaleService struct {
	repo     repository.SaleRepository
	location *time.Location
}

func NewSaleService(repo repository.SaleRepository, loc *time.Location) *SaleService {
	if loc == nil {
		loc = time.UTC
	}
	return &SaleService{repo: repo, location: loc}
}

// List 分页查询用户的销售明细，end_date 包含当天
func (s *SaleService) List(ctx context.Context, userID int64, req *dto.ListSalesRequest) (*dto.ListSalesResponse, error) {
	filter := repository.SaleFilter{
		UserID:   userID,
		Platform: req.Platform,
		Keyword:  req.Keyword,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	if req.Status != "" {
		if _, ok := saleStatuses[req.Status]; !ok {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidQuery, req.Status)
		}
		filter.Status = req.Status
	}
	if req.StartDate != "" {
		t, err := time.ParseInLocation("2006-01-02", req.StartDate, s.location)
		if err != nil {
			return nil, fmt.Errorf("%w: start_date %q", ErrInvalidQuery, req.StartDate)
		}
		t = t.UTC()
		filter.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := time.ParseInLocation("2006-01-02", req.EndDate, s.location)
		if err != nil {
			return nil, fmt.Errorf("%w: end_date %q", ErrInvalidQuery, req.EndDate)
		}
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond).UTC()
		filter.EndDate = &t
	}

	sales, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	list := make([]dto.SaleItem, len(sales))
	for i := range sales {
		list[i] = toSaleItem(&sales[i])
	}
	return &dto.ListSalesResponse{Total: total, List: list}, nil
}

func toSaleItem(s *model.Sale) dto.SaleItem {
	return dto.SaleItem{
		ID:               s.ID,
		Platform:         s.Platform,
		OrderID:          s.OrderID,
		ItemID:           s.ItemID,
		ItemTitle:        s.ItemTitle,
		Quantity:         s.Quantity,
		Price:            s.Price,
		Currency:         s.Currency,
		BuyerName:        s.BuyerName,
		BuyerEmail:       s.BuyerEmail,
		SaleDate:         s.SaleDate,
		Status:           s.Status,
		NormalizedStatus: s.NormalizedStatus,
		ShippingAddress:  s.ShippingAddress,
		TrackingNumber:   s.TrackingNumber,
		CreatedAt:        s.CreatedAt,
	}
}
