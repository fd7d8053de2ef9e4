package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/repository"
	"sales_ledger_v1/pkg/lock"
)

// ErrLedgerWrite 单条销售明细写入失败
var ErrLedgerWrite = errors.New("ledger write failed")

// LedgerWriteError 单条记录的写入错误，批次继续
type LedgerWriteError struct {
	OrderID string
	ItemID  string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("写入 %s/%s 失败: %v", e.OrderID, e.ItemID, e.Err)
}

func (e *LedgerWriteError) Unwrap() []error { return []error{ErrLedgerWrite, e.Err} }

// WriteResult 一批记录的写入结果
type WriteResult struct {
	Written  int
	Failures []*LedgerWriteError
}

// LedgerWriter 同一用户的写入串行执行，不同用户互不阻塞
type LedgerWriter struct {
	repo   repository.SaleRepository
	locker lock.Locker
	logger *zap.Logger
}

func NewLedgerWriter(repo repository.SaleRepository, locker lock.Locker, log *zap.Logger) *LedgerWriter {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerWriter{repo: repo, locker: locker, logger: log.Named("ledger")}
}

// Write 持有用户写锁逐条 upsert
// 只有拿锁失败或 ctx 取消时返回 error，此时已写入的记录保留
func (w *LedgerWriter) Write(ctx context.Context, userID int64, sales []model.Sale) (*WriteResult, error) {
	res := &WriteResult{}
	if len(sales) == 0 {
		return res, nil
	}

	unlock, err := w.locker.Lock(ctx, "ledger:user:"+strconv.FormatInt(userID, 10))
	if err != nil {
		return res, err
	}
	defer unlock()

	for i := range sales {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		s := &sales[i]
		if err := w.repo.Upsert(ctx, s); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures = append(res.Failures, &LedgerWriteError{OrderID: s.OrderID, ItemID: s.ItemID, Err: err})
			w.logger.Warn("[LedgerWriter] 记录写入失败",
				zap.Int64("user_id", userID),
				zap.String("platform", s.Platform),
				zap.String("order_id", s.OrderID),
				zap.String("item_id", s.ItemID),
				zap.Error(err))
			continue
		}
		res.Written++
	}
	return res, nil
}
