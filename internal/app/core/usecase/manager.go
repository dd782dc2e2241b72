package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
)

// TransactionManager 受理轉帳請求並提供查詢
// 受理流程：驗證 -> 餘額預檢 -> 落地 pending -> 通知金流商，結算本身是非同步的
type TransactionManager struct {
	ledger     Ledger
	log        TransactionLog
	dispatcher SettlementDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewTransactionManager(ledger Ledger, log TransactionLog, dispatcher SettlementDispatcher, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{
		ledger:     ledger,
		log:        log,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Create 受理一筆轉帳
// 餘額預檢只是快速失敗用的參考值，不做圈存；真正的授權在結算時由儲存層復驗
func (m *TransactionManager) Create(ctx context.Context, fromID, toID, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if fromID == toID {
		return nil, domain.ErrSameAccount
	}

	if _, err := m.ledger.GetAccount(ctx, fromID); err != nil {
		return nil, err
	}
	if _, err := m.ledger.GetAccount(ctx, toID); err != nil {
		return nil, err
	}

	balance, err := m.ledger.GetBalance(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, domain.ErrInsufficientBalance
	}

	tran := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		State:         domain.StatePending,
		CreatedAt:     m.now(),
	}
	if err := m.log.Insert(ctx, tran); err != nil {
		return nil, err
	}

	// 送出結算請求 (best-effort)
	// 失敗只記錄，交易停留在 pending，由對帳掃描收尾
	if err := m.dispatcher.Dispatch(ctx, tran); err != nil {
		m.logger.Warn("settlement dispatch failed, transaction stays pending",
			zap.String("transaction_id", tran.ID.String()),
			zap.Error(err),
		)
	}

	return tran.Clone(), nil
}

// Get 以交易 ID 查詢
func (m *TransactionManager) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return m.log.Get(ctx, id)
}

// List 查詢交易，依建立時間新到舊
// 起訖以「日」為粒度：起日取 00:00:00，訖日取當日最後一刻
func (m *TransactionManager) List(ctx context.Context, startDate, endDate *time.Time) ([]*domain.Transaction, error) {
	var rng TimeRange
	if startDate != nil {
		s := StartOfDay(*startDate)
		rng.Start = &s
	}
	if endDate != nil {
		e := EndOfDay(*endDate)
		rng.End = &e
	}
	return m.log.List(ctx, rng)
}

// StartOfDay 當日 00:00:00.000
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay 當日最後一刻 (下一日 00:00 的前一奈秒)
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
