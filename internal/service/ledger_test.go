package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/repository"
	"sales_ledger_v1/pkg/lock"
)

// flakySaleRepo 对指定订单的写入返回错误
type flakySaleRepo struct {
	repository.SaleRepository
	failOrder string
}

func (r *flakySaleRepo) Upsert(ctx context.Context, s *model.Sale) error {
	if s.OrderID == r.failOrder {
		return errors.New("constraint violation")
	}
	return r.SaleRepository.Upsert(ctx, s)
}

func ledgerSales(n int) []model.Sale {
	out := make([]model.Sale, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Sale{
			UserID: 1, Platform: "etsy", OrderID: "o" + string(rune('a'+i)), ItemID: "i",
			Quantity: 1, Price: 1, SaleDate: time.Now().UTC(),
		})
	}
	return out
}

func TestLedgerWriter_ContinuesAfterRecordFailure(t *testing.T) {
	db := setupServiceTestDB(t)
	repo := &flakySaleRepo{SaleRepository: repository.NewSaleRepository(db), failOrder: "ob"}
	w := NewLedgerWriter(repo, nil, nil)

	res, err := w.Write(context.Background(), 1, ledgerSales(3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "ob", res.Failures[0].OrderID)
	assert.ErrorIs(t, res.Failures[0], ErrLedgerWrite)
}

func TestLedgerWriter_Cancelled(t *testing.T) {
	db := setupServiceTestDB(t)
	w := NewLedgerWriter(repository.NewSaleRepository(db), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := w.Write(ctx, 1, ledgerSales(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Written)
}

func TestLedgerWriter_Empty(t *testing.T) {
	w := NewLedgerWriter(nil, nil, nil)
	res, err := w.Write(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Written)
}

// 同一用户的并发写入结果与串行一致
func TestLedgerWriter_ConcurrentSameUser(t *testing.T) {
	db := setupServiceTestDB(t)
	repo := repository.NewSaleRepository(db)
	w := NewLedgerWriter(repo, lock.NewKeyedMutex(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Write(context.Background(), 1, ledgerSales(5))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := repo.CountByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}
