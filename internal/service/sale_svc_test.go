package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/repository"
)

func TestSaleService_List(t *testing.T) {
	db := setupServiceTestDB(t)
	repo := repository.NewSaleRepository(db)
	ctx := context.Background()

	rows := []model.Sale{
		sale("etsy", "o1", "i1", "a@x.com", "A", 10, 1, day(1)),
		sale("ebay", "o2", "i1", "b@x.com", "B", 20, 1, day(2)),
		sale("etsy", "o3", "i1", "c@x.com", "C", 30, 1, day(3)),
	}
	rows[1].NormalizedStatus = model.SaleStatusRefunded
	for i := range rows {
		require.NoError(t, repo.Upsert(ctx, &rows[i]))
	}

	svc := NewSaleService(repo, nil)

	resp, err := svc.List(ctx, 1, &dto.ListSalesRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Total)
	require.Len(t, resp.List, 2)
	assert.Equal(t, "o3", resp.List[0].OrderID)

	resp, err = svc.List(ctx, 1, &dto.ListSalesRequest{Status: model.SaleStatusRefunded})
	require.NoError(t, err)
	require.Len(t, resp.List, 1)
	assert.Equal(t, "ebay", resp.List[0].Platform)

	// end_date 包含当天
	resp, err = svc.List(ctx, 1, &dto.ListSalesRequest{StartDate: "2025-03-02", EndDate: "2025-03-02"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Total)

	_, err = svc.List(ctx, 1, &dto.ListSalesRequest{Status: "shipped"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = svc.List(ctx, 1, &dto.ListSalesRequest{StartDate: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	// 其他用户看不到
	resp, err = svc.List(ctx, 2, &dto.ListSalesRequest{})
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
	assert.NotNil(t, resp.List)
}
