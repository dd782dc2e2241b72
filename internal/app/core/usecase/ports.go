package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/minipay/minipay/internal/app/core/domain"
)

// TimeRange 查詢用的時間區間，兩端皆為閉區間，nil 表示不限
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains 判斷時間點是否落在區間內
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// Ledger 帳本的出口介面
// 餘額只能透過 ConditionalDebit / Credit 異動，兩者都必須是儲存層的原子操作
type Ledger interface {
	// CreateAccount 開戶 (外部開戶流程的落地點，核心不主動呼叫)
	CreateAccount(ctx context.Context, name, email string, openingBalance int64) (*domain.Account, error)
	// GetAccount 查詢帳戶
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// GetBalance 取得帳戶餘額 (單點讀取，不保證後續不變)
	GetBalance(ctx context.Context, accountID int64) (int64, error)
	// ConditionalDebit 原子的條件扣款：餘額足夠才成立，檢查與扣款是同一個原子操作
	ConditionalDebit(ctx context.Context, accountID, amount int64) error
	// Credit 原子的無條件入帳
	Credit(ctx context.Context, accountID, amount int64) error
}

// TransactionLog 交易紀錄的出口介面
type TransactionLog interface {
	// Insert 新增一筆 pending 交易
	Insert(ctx context.Context, tran *domain.Transaction) error
	// Get 以交易 ID 查詢
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// List 依建立時間新到舊排序，rng 兩端皆為閉區間
	List(ctx context.Context, rng TimeRange) ([]*domain.Transaction, error)
	// Settle 套用外部回報的結果
	// 冪等檢查、餘額復驗、扣款入帳與狀態轉移必須在同一個原子單位內完成:
	//   - 交易已在終態: 回傳 ErrTransactionAlreadyProcessed，不得有任何異動
	//   - verdict = failed: pending -> failed，不碰帳務
	//   - verdict = completed 但餘額不足: pending -> failed，回傳交易與 ErrInsufficientBalance
	//   - verdict = completed 且餘額足夠: 扣款 + 入帳 + pending -> completed
	// 鎖競爭或交易中止時回傳 ErrSettleConflict，呼叫端應整段重跑
	Settle(ctx context.Context, id uuid.UUID, verdict domain.Verdict) (*domain.Transaction, error)
	// SettleExpired 將建立時間早於 cutoff 且仍為 pending 的交易轉為 failed
	// 對帳掃描用，避免金流商失聯讓資金永遠「在途」
	SettleExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SettlementDispatcher 對外部金流商送出結算請求 (best-effort)
type SettlementDispatcher interface {
	Dispatch(ctx context.Context, tran *domain.Transaction) error
}
