package mysql

import (
	"context"
	"errors"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
	"github.com/minipay/minipay/pkg/mysql"
)

// MySQL error numbers
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255)"`
	Email     string `gorm:"type:varchar(255);uniqueIndex"`
	Balance   int64
	UpdatedAt int64 `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	RefID         []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.ID
	FromAccountID int64  `gorm:"index"`
	ToAccountID   int64  `gorm:"index"`
	Amount        int64
	State         string `gorm:"type:varchar(16);index"`
	CreatedAt     int64  `gorm:"index"` // Unix 毫秒
	DecidedAt     *int64
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (t *sqlTransaction) toDomain() *domain.Transaction {
	tran := &domain.Transaction{
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		State:         domain.State(t.State),
		CreatedAt:     time.UnixMilli(t.CreatedAt),
	}
	copy(tran.ID[:], t.RefID)
	if t.DecidedAt != nil {
		at := time.UnixMilli(*t.DecidedAt)
		tran.DecidedAt = &at
	}
	return tran
}

// Store 以 MySQL (GORM) 實作 Ledger 與 TransactionLog
type Store struct {
	client *mysql.Client
	now    func() time.Time
}

func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// Migrate 建立資料表
func (s *Store) Migrate() error {
	return s.client.DB().AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

// CreateAccount 開戶
func (s *Store) CreateAccount(ctx context.Context, name, email string, openingBalance int64) (*domain.Account, error) {
	row := sqlAccount{
		Name:    name,
		Email:   email,
		Balance: openingBalance,
	}
	if err := s.client.DB().WithContext(ctx).Create(&row).Error; err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, err
	}
	return domain.NewAccount(row.ID, row.Name, row.Email, row.Balance), nil
}

// GetAccount 查詢帳戶
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).Where("id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return domain.NewAccount(row.ID, row.Name, row.Email, row.Balance), nil
}

// GetBalance 取得帳戶餘額
func (s *Store) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// ConditionalDebit 原子的條件扣款
// 以單一條件式 UPDATE 完成，不是讀取後再寫回：並發扣款不可能同時通過同一份舊餘額的檢查
func (s *Store) ConditionalDebit(ctx context.Context, accountID, amount int64) error {
	res := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 分辨是帳戶不存在還是餘額不足
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Credit 原子的無條件入帳
func (s *Store) Credit(ctx context.Context, accountID, amount int64) error {
	res := s.client.DB().WithContext(ctx).
		Model(&sqlAccount{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Insert 新增一筆 pending 交易
func (s *Store) Insert(ctx context.Context, tran *domain.Transaction) error {
	row := sqlTransaction{
		RefID:         tran.ID[:],
		FromAccountID: tran.FromAccountID,
		ToAccountID:   tran.ToAccountID,
		Amount:        tran.Amount,
		State:         string(tran.State),
		CreatedAt:     tran.CreatedAt.UnixMilli(),
	}
	if err := s.client.DB().WithContext(ctx).Create(&row).Error; err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return domain.ErrTransactionAlreadyProcessed
		}
		return err
	}
	return nil
}

// Get 以交易 ID 查詢
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var row sqlTransaction
	err := s.client.DB().WithContext(ctx).Where("ref_id = ?", id[:]).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// List 依建立時間新到舊
func (s *Store) List(ctx context.Context, rng usecase.TimeRange) ([]*domain.Transaction, error) {
	query := s.client.DB().WithContext(ctx).Model(&sqlTransaction{})
	if rng.Start != nil {
		query = query.Where("created_at >= ?", rng.Start.UnixMilli())
	}
	if rng.End != nil {
		query = query.Where("created_at <= ?", rng.End.UnixMilli())
	}

	var rows []sqlTransaction
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// Settle 套用外部回報的結果
// 整段在一個資料庫交易內：交易列與帳戶列都上悲觀鎖 (SELECT ... FOR UPDATE)，
// 冪等檢查、餘額復驗、扣款入帳與狀態轉移要嘛全部生效要嘛全部不生效
//
// 注意：餘額不足時交易要「落地為 failed 並回報錯誤」，所以業務性失敗不能讓
// 資料庫交易回滾，改以 bizErr 帶出
func (s *Store) Settle(ctx context.Context, id uuid.UUID, verdict domain.Verdict) (*domain.Transaction, error) {
	var result *domain.Transaction
	var bizErr error

	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sqlTransaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("ref_id = ?", id[:]).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bizErr = domain.ErrTransactionNotFound
			return nil
		}
		if err != nil {
			return err
		}

		// 冪等閘門：終態直接拒絕，不得有任何異動
		if domain.State(row.State).IsTerminal() {
			bizErr = domain.ErrTransactionAlreadyProcessed
			return nil
		}

		if verdict == domain.VerdictFailed {
			return s.decide(tx, &row, domain.StateFailed, &result)
		}

		// 取得鎖定帳號 依 ID 順序上鎖避免死鎖
		tran := row.toDomain()
		lockIDs := tran.LockIDs()
		var accounts []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", lockIDs).
			Order("id").
			Find(&accounts).Error; err != nil {
			return err
		}
		accountMap := make(map[int64]*sqlAccount)
		for i := range accounts {
			accountMap[accounts[i].ID] = &accounts[i]
		}

		from, okFrom := accountMap[row.FromAccountID]
		to, okTo := accountMap[row.ToAccountID]
		if !okFrom || !okTo {
			bizErr = domain.ErrAccountNotFound
			return s.decide(tx, &row, domain.StateFailed, &result)
		}

		// 餘額復驗：受理後餘額可能已被消耗，非負不變量優先於金流商的主張
		if from.Balance < row.Amount {
			bizErr = domain.ErrInsufficientBalance
			return s.decide(tx, &row, domain.StateFailed, &result)
		}

		from.Balance -= row.Amount
		to.Balance += row.Amount
		for _, acc := range accounts {
			if err := tx.Save(&acc).Error; err != nil {
				return err
			}
		}

		return s.decide(tx, &row, domain.StateCompleted, &result)
	})
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) &&
			(mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout) {
			return nil, domain.ErrSettleConflict
		}
		return nil, err
	}
	return result, bizErr
}

// decide 落地終態轉移 (呼叫端已持交易列的鎖)
func (s *Store) decide(tx *gorm.DB, row *sqlTransaction, state domain.State, out **domain.Transaction) error {
	decidedAt := s.now().UnixMilli()
	res := tx.Model(&sqlTransaction{}).
		Where("id = ? AND state = ?", row.ID, string(domain.StatePending)).
		Updates(map[string]any{
			"state":      string(state),
			"decided_at": decidedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	// 理論上不會發生：列已上鎖且剛確認過 pending
	if res.RowsAffected == 0 {
		return domain.ErrSettleConflict
	}
	row.State = string(state)
	row.DecidedAt = &decidedAt
	*out = row.toDomain()
	return nil
}

// SettleExpired 將逾期未決的 pending 交易轉為 failed
// 單一條件式 UPDATE 即是 CAS：慢到的回呼會在冪等閘門被擋下
func (s *Store) SettleExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.client.DB().WithContext(ctx).
		Model(&sqlTransaction{}).
		Where("state = ? AND created_at < ?", string(domain.StatePending), cutoff.UnixMilli()).
		Updates(map[string]any{
			"state":      string(domain.StateFailed),
			"decided_at": s.now().UnixMilli(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

var _ usecase.Ledger = (*Store)(nil)
var _ usecase.TransactionLog = (*Store)(nil)
