package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

func TestResolveCompletedMovesFundsOnce(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	settled, err := f.callbacks.Resolve(ctx, tran.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, settled.State)
	require.NotNil(t, settled.DecidedAt)
	assert.Equal(t, int64(90), f.balance(t, alice))
	assert.Equal(t, int64(10), f.balance(t, bob))

	// 重複回呼：冪等拒絕，帳務不動
	_, err = f.callbacks.Resolve(ctx, tran.ID, "completed")
	assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
	assert.Equal(t, int64(90), f.balance(t, alice))
	assert.Equal(t, int64(10), f.balance(t, bob))
}

func TestResolveFailedTouchesNoBalances(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	settled, err := f.callbacks.Resolve(ctx, tran.ID, "failed")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, settled.State)
	assert.Equal(t, int64(100), f.balance(t, alice))
	assert.Equal(t, int64(0), f.balance(t, bob))

	// failed 也是終態
	_, err = f.callbacks.Resolve(ctx, tran.ID, "completed")
	assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
	assert.Equal(t, int64(100), f.balance(t, alice))
}

func TestResolveInvalidVerdict(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	_, err = f.callbacks.Resolve(ctx, tran.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidVerdict)

	// 交易維持 pending，沒有任何異動
	stored, err := f.manager.Get(ctx, tran.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, stored.State)
}

func TestResolveUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.callbacks.Resolve(context.Background(), uuid.New(), "completed")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestResolveRevalidatesFunds(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 50)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	// 餘額 50 時受理兩筆 30：沒有圈存，預檢都會通過
	first, err := f.manager.Create(ctx, alice, bob, 30)
	require.NoError(t, err)
	second, err := f.manager.Create(ctx, alice, bob, 30)
	require.NoError(t, err)

	settled, err := f.callbacks.Resolve(ctx, first.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, settled.State)
	assert.Equal(t, int64(20), f.balance(t, alice))

	// 金流商主張 completed，但復驗發現 20 < 30：改判 failed，餘額不得為負
	settled, err = f.callbacks.Resolve(ctx, second.ID, "completed")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.NotNil(t, settled)
	assert.Equal(t, domain.StateFailed, settled.State)
	assert.Equal(t, int64(20), f.balance(t, alice))
	assert.Equal(t, int64(30), f.balance(t, bob))

	// 改判結果已落地，查詢看到同一個終態
	stored, err := f.manager.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, stored.State)
}

func TestResolveConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.callbacks.Resolve(ctx, tran.ID, "completed")
		}(i)
	}
	wg.Wait()

	// 至多一次結算：恰好一個成功，其餘都被冪等閘門擋下
	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(90), f.balance(t, alice))
	assert.Equal(t, int64(10), f.balance(t, bob))
}

func TestConservationUnderConcurrentSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accounts := []int64{
		f.newAccount(t, "a", 500),
		f.newAccount(t, "b", 500),
		f.newAccount(t, "c", 500),
	}
	total := int64(1500)

	// 受理一批互相轉帳的交易，再併發結算
	var trans []*domain.Transaction
	for i := 0; i < 30; i++ {
		from := accounts[i%3]
		to := accounts[(i+1)%3]
		tran, err := f.manager.Create(ctx, from, to, int64(10+i))
		require.NoError(t, err)
		trans = append(trans, tran)
	}

	var wg sync.WaitGroup
	for i, tran := range trans {
		verdict := "completed"
		if i%4 == 0 {
			verdict = "failed"
		}
		wg.Add(1)
		go func(id uuid.UUID, verdict string) {
			defer wg.Done()
			// 結算時餘額不足是合法結果，這裡只關心守恆
			_, _ = f.callbacks.Resolve(ctx, id, verdict)
		}(tran.ID, verdict)
	}
	wg.Wait()

	var sum int64
	for _, id := range accounts {
		balance := f.balance(t, id)
		assert.GreaterOrEqual(t, balance, int64(0))
		sum += balance
	}
	assert.Equal(t, total, sum)

	// 全部交易都已收斂至終態
	all, err := f.manager.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 30)
	for _, tran := range all {
		assert.True(t, tran.State.IsTerminal())
	}
}

// conflictLog 前幾次 Settle 回傳衝突，之後轉交給真正的實作
type conflictLog struct {
	usecase.TransactionLog
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (l *conflictLog) Settle(ctx context.Context, id uuid.UUID, verdict domain.Verdict) (*domain.Transaction, error) {
	l.mu.Lock()
	l.attempts++
	if l.attempts <= l.conflicts {
		l.mu.Unlock()
		return nil, domain.ErrSettleConflict
	}
	l.mu.Unlock()
	return l.TransactionLog.Settle(ctx, id, verdict)
}

func TestResolveRetriesOnStorageConflict(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	log := &conflictLog{TransactionLog: f.store, conflicts: 2}
	callbacks := usecase.NewCallbackHandler(log, zap.NewNop())

	settled, err := callbacks.Resolve(ctx, tran.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, settled.State)
	assert.Equal(t, 3, log.attempts)
	assert.Equal(t, int64(90), f.balance(t, alice))
}

func TestResolveGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	tran, err := f.manager.Create(ctx, alice, bob, 10)
	require.NoError(t, err)

	log := &conflictLog{TransactionLog: f.store, conflicts: 10}
	callbacks := usecase.NewCallbackHandler(log, zap.NewNop())

	_, err = callbacks.Resolve(ctx, tran.ID, "completed")
	assert.ErrorIs(t, err, domain.ErrSettleConflict)

	// 放棄後交易仍是 pending，重送的回呼可以再試
	stored, err := f.manager.Get(ctx, tran.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, stored.State)
}
