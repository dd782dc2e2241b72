package domain

import (
	"time"

	"github.com/google/uuid"
)

// amount 使用int64，並定義精度：小數點後 2 位 (最小貨幣單位)
const (
	CurrencyScale = 100
)

// State 交易生命週期狀態
type State string

const (
	// 已受理，等待外部金流商回報結果
	StatePending State = "pending"
	// 結算完成，帳務已異動
	StateCompleted State = "completed"
	// 結算失敗，帳務未異動
	StateFailed State = "failed"
)

// IsTerminal 回報是否為終態 (completed / failed)
// 終態具有黏滯性：一旦進入，任何後續回呼都不得再改變狀態
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Verdict 外部金流商對一筆交易主張的結果
type Verdict string

const (
	VerdictCompleted Verdict = "completed"
	VerdictFailed    Verdict = "failed"
)

// ParseVerdict 解析回呼帶入的結果字串
// 只接受 completed / failed，其餘一律回傳 ErrInvalidVerdict 且不得異動任何狀態
func ParseVerdict(raw string) (Verdict, error) {
	switch Verdict(raw) {
	case VerdictCompleted:
		return VerdictCompleted, nil
	case VerdictFailed:
		return VerdictFailed, nil
	default:
		return "", ErrInvalidVerdict
	}
}

// Transaction 轉帳交易
// 同時是稽核軌跡：只新增、只轉移狀態，永不刪除
type Transaction struct {
	// ID: 外部追蹤號 (UUID)，建立時產生；回呼以它作為冪等鍵
	ID uuid.UUID
	// From, To: 帳戶 ID，必須相異
	FromAccountID int64
	ToAccountID   int64
	// Amount: 金額 (最小貨幣單位)，必須為正
	Amount int64
	// State: pending -> completed / failed，各至多發生一次
	State State
	// CreatedAt: 受理時間
	CreatedAt time.Time
	// DecidedAt: 離開 pending 時寫入
	DecidedAt *time.Time
}

// LockIDs 回傳需要鎖定的帳號 ID，並確保順序以避免死鎖
func (t *Transaction) LockIDs() (ids []int64) {
	ids = make([]int64, 0, 2)
	if t.FromAccountID < t.ToAccountID {
		ids = append(ids, t.FromAccountID, t.ToAccountID)
	} else {
		ids = append(ids, t.ToAccountID, t.FromAccountID)
	}
	return ids
}

// Decide 將交易移往終態
// 只允許 pending 出發，重複結算回傳 ErrTransactionAlreadyProcessed
func (t *Transaction) Decide(state State, at time.Time) error {
	if t.State.IsTerminal() {
		return ErrTransactionAlreadyProcessed
	}
	if !state.IsTerminal() {
		return ErrInvalidVerdict
	}
	t.State = state
	t.DecidedAt = &at
	return nil
}

// Clone 回傳交易的複本，避免呼叫端拿到內部指標後產生資料競爭
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.DecidedAt != nil {
		at := *t.DecidedAt
		cp.DecidedAt = &at
	}
	return &cp
}
