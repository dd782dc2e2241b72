package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
	"github.com/minipay/minipay/pkg/wal"
)

// WAL 紀錄的操作類型
const (
	walOpAccount = "account"
	walOpInsert  = "insert"
	walOpSettle  = "settle"
	walOpDebit   = "debit"
	walOpCredit  = "credit"
)

// walRecord WAL 的一行紀錄
// settle 只記 ID 與 verdict，重放時以相同狀態重新執行，結果是確定性的
type walRecord struct {
	Op            string              `json:"op"`
	Account       *domain.Account     `json:"account,omitempty"`
	Transaction   *domain.Transaction `json:"transaction,omitempty"`
	TransactionID uuid.UUID           `json:"transactionId,omitempty"`
	Verdict       domain.Verdict      `json:"verdict,omitempty"`
	AccountID     int64               `json:"accountId,omitempty"`
	Amount        int64               `json:"amount,omitempty"`
	At            time.Time           `json:"at,omitempty"`
}

// Store 是一個使用 Mutex 實現的記憶體帳本與交易紀錄
//
// 結構:
//
//	accounts: 帳戶資料 Map
//	trans: 交易紀錄 Map (交易 ID 為冪等鍵)
//	order: 交易建立順序，List 反向走訪即為新到舊
//	wal: Write-Ahead Log 實例 (可為 nil，測試時常不掛)
type Store struct {
	mu       sync.RWMutex
	accounts map[int64]*domain.Account
	emails   map[string]int64
	trans    map[uuid.UUID]*domain.Transaction
	order    []uuid.UUID
	nextID   int64
	wal      *wal.WAL
	now      func() time.Time
}

// NewStore 建立記憶體 Store，若帶入 WAL 會先重放還原狀態
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		accounts: make(map[int64]*domain.Account),
		emails:   make(map[string]int64),
		trans:    make(map[uuid.UUID]*domain.Transaction),
		wal:      w,
		now:      time.Now,
	}
	if w != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		s.applyRecord(&rec)
		return nil
	})
}

// applyRecord 重放單筆紀錄 (不寫入 WAL)
// 業務性錯誤 (重複結算、餘額不足) 在重放時是確定性的舊結果，直接忽略
func (s *Store) applyRecord(rec *walRecord) {
	switch rec.Op {
	case walOpAccount:
		if rec.Account == nil {
			return
		}
		acc := *rec.Account
		s.accounts[acc.ID] = &acc
		s.emails[acc.Email] = acc.ID
		if acc.ID >= s.nextID {
			s.nextID = acc.ID + 1
		}
	case walOpInsert:
		if rec.Transaction == nil {
			return
		}
		tran := rec.Transaction.Clone()
		s.trans[tran.ID] = tran
		s.order = append(s.order, tran.ID)
	case walOpSettle:
		if tran, ok := s.trans[rec.TransactionID]; ok {
			_, _ = s.applySettle(tran, rec.Verdict, rec.At)
		}
	case walOpDebit:
		if acc, ok := s.accounts[rec.AccountID]; ok {
			_ = acc.Debit(rec.Amount)
		}
	case walOpCredit:
		if acc, ok := s.accounts[rec.AccountID]; ok {
			_ = acc.Credit(rec.Amount)
		}
	}
}

// logRecord 寫入 WAL 並刷入硬碟 (Critical Path)
func (s *Store) logRecord(rec *walRecord) error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Write(rec); err != nil {
		return domain.ErrWALWriteFailed
	}
	if err := s.wal.Flush(); err != nil {
		return domain.ErrWALWriteFailed
	}
	return nil
}

// CreateAccount 開戶
func (s *Store) CreateAccount(ctx context.Context, name, email string, openingBalance int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[email]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}
	if s.nextID == 0 {
		s.nextID = 1
	}
	acc := domain.NewAccount(s.nextID, name, email, openingBalance)
	if err := s.logRecord(&walRecord{Op: walOpAccount, Account: acc}); err != nil {
		return nil, err
	}
	s.nextID++
	s.accounts[acc.ID] = acc
	s.emails[acc.Email] = acc.ID

	cp := *acc
	return &cp, nil
}

// GetAccount 查詢帳戶
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

// GetBalance 取得指定帳戶的當前餘額
func (s *Store) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return acc.Balance, nil
}

// ConditionalDebit 原子的條件扣款：檢查與扣款在同一把鎖內完成
func (s *Store) ConditionalDebit(ctx context.Context, accountID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if acc.Balance < amount {
		return domain.ErrInsufficientBalance
	}
	if err := s.logRecord(&walRecord{Op: walOpDebit, AccountID: accountID, Amount: amount}); err != nil {
		return err
	}
	return acc.Debit(amount)
}

// Credit 原子的無條件入帳
func (s *Store) Credit(ctx context.Context, accountID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if err := s.logRecord(&walRecord{Op: walOpCredit, AccountID: accountID, Amount: amount}); err != nil {
		return err
	}
	return acc.Credit(amount)
}

// Insert 新增一筆 pending 交易
func (s *Store) Insert(ctx context.Context, tran *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trans[tran.ID]; ok {
		return domain.ErrTransactionAlreadyProcessed
	}
	cp := tran.Clone()
	if err := s.logRecord(&walRecord{Op: walOpInsert, Transaction: cp}); err != nil {
		return err
	}
	s.trans[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	return nil
}

// Get 以交易 ID 查詢
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tran, ok := s.trans[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tran.Clone(), nil
}

// List 依建立時間新到舊 (order 反向走訪)
func (s *Store) List(ctx context.Context, rng usecase.TimeRange) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		tran := s.trans[s.order[i]]
		if !rng.Contains(tran.CreatedAt) {
			continue
		}
		result = append(result, tran.Clone())
	}
	return result, nil
}

// Settle 套用外部回報的結果
// 冪等檢查、餘額復驗、扣款入帳與狀態轉移都在同一把鎖內，不會觀察到部分結果
func (s *Store) Settle(ctx context.Context, id uuid.UUID, verdict domain.Verdict) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tran, ok := s.trans[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if tran.State.IsTerminal() {
		return nil, domain.ErrTransactionAlreadyProcessed
	}

	at := s.now()
	// 先落 WAL 再套用；套用是確定性的，重放會得到相同結果
	if err := s.logRecord(&walRecord{Op: walOpSettle, TransactionID: id, Verdict: verdict, At: at}); err != nil {
		return nil, err
	}

	result, err := s.applySettle(tran, verdict, at)
	if result == nil {
		return nil, err
	}
	return result.Clone(), err
}

// applySettle 核心結算邏輯 (呼叫端持鎖)
func (s *Store) applySettle(tran *domain.Transaction, verdict domain.Verdict, at time.Time) (*domain.Transaction, error) {
	if tran.State.IsTerminal() {
		return nil, domain.ErrTransactionAlreadyProcessed
	}

	if verdict == domain.VerdictFailed {
		_ = tran.Decide(domain.StateFailed, at)
		return tran, nil
	}

	from, okFrom := s.accounts[tran.FromAccountID]
	to, okTo := s.accounts[tran.ToAccountID]
	if !okFrom || !okTo {
		_ = tran.Decide(domain.StateFailed, at)
		return tran, domain.ErrAccountNotFound
	}

	// 餘額復驗：受理後餘額可能已被其他結算消耗，帳本的非負不變量優先於金流商的主張
	if from.Balance < tran.Amount {
		_ = tran.Decide(domain.StateFailed, at)
		return tran, domain.ErrInsufficientBalance
	}

	if err := from.Debit(tran.Amount); err != nil {
		_ = tran.Decide(domain.StateFailed, at)
		return tran, err
	}
	_ = to.Credit(tran.Amount)
	_ = tran.Decide(domain.StateCompleted, at)
	return tran, nil
}

// SettleExpired 將逾期未決的 pending 交易轉為 failed
func (s *Store) SettleExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	at := s.now()
	for _, id := range s.order {
		tran := s.trans[id]
		if tran.State != domain.StatePending || !tran.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.logRecord(&walRecord{Op: walOpSettle, TransactionID: id, Verdict: domain.VerdictFailed, At: at}); err != nil {
			return count, err
		}
		if _, err := s.applySettle(tran, domain.VerdictFailed, at); err == nil {
			count++
		}
	}
	return count, nil
}

var _ usecase.Ledger = (*Store)(nil)
var _ usecase.TransactionLog = (*Store)(nil)
