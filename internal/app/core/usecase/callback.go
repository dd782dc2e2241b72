package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
)

// settleMaxAttempts 儲存層衝突時的重試上限
const settleMaxAttempts = 3

// CallbackHandler 接收外部金流商的結算回呼
// 這是整個系統唯一會動到錢的路徑：呼叫端不可信、可能重送、可能延遲，
// 冪等與原子性都下放到 TransactionLog.Settle 在儲存層保證
type CallbackHandler struct {
	log    TransactionLog
	logger *zap.Logger
}

func NewCallbackHandler(log TransactionLog, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		log:    log,
		logger: logger,
	}
}

// Resolve 套用外部回報的結果
//
// 參數:
//
//	id: 交易 ID (冪等鍵)
//	rawVerdict: 回呼帶入的結果字串，只接受 completed / failed
//
// 回傳:
//
//	*domain.Transaction: 結算後的交易 (結算時發現餘額不足時，回傳已落地的 failed 交易)
//	error: ErrInvalidVerdict / ErrTransactionNotFound / ErrTransactionAlreadyProcessed /
//	       ErrInsufficientBalance
func (h *CallbackHandler) Resolve(ctx context.Context, id uuid.UUID, rawVerdict string) (*domain.Transaction, error) {
	verdict, err := domain.ParseVerdict(rawVerdict)
	if err != nil {
		return nil, err
	}

	var tran *domain.Transaction
	for attempt := 1; ; attempt++ {
		tran, err = h.log.Settle(ctx, id, verdict)
		if !errors.Is(err, domain.ErrSettleConflict) || attempt >= settleMaxAttempts {
			break
		}
		// 衝突時整段重跑 (狀態可能已被別人改掉)，絕不重放原始異動
		h.logger.Warn("settle conflict, retrying",
			zap.String("transaction_id", id.String()),
			zap.Int("attempt", attempt),
		)
	}

	switch {
	case err == nil:
		h.logger.Info("transaction settled",
			zap.String("transaction_id", id.String()),
			zap.String("state", string(tran.State)),
		)
	case errors.Is(err, domain.ErrInsufficientBalance):
		// 金流商主張 completed，但帳本對自己的不變量有最終裁量權
		h.logger.Warn("verdict overridden: insufficient balance at settlement time",
			zap.String("transaction_id", id.String()),
		)
	case errors.Is(err, domain.ErrTransactionAlreadyProcessed):
		// 重複回呼是預期中的冪等結果，不升級警報
		h.logger.Info("duplicate callback ignored",
			zap.String("transaction_id", id.String()),
		)
	}

	return tran, err
}
