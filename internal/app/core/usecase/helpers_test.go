package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/adapter/out/memory"
	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

// fakeDispatcher 記錄所有送出的結算請求，可注入錯誤
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []*domain.Transaction
	err   error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, tran *domain.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, tran.Clone())
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fixture struct {
	store      *memory.Store
	manager    *usecase.TransactionManager
	callbacks  *usecase.CallbackHandler
	dispatcher *fakeDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := memory.NewStore(nil)
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{}
	logger := zap.NewNop()

	return &fixture{
		store:      store,
		manager:    usecase.NewTransactionManager(store, store, dispatcher, logger),
		callbacks:  usecase.NewCallbackHandler(store, logger),
		dispatcher: dispatcher,
	}
}

// newAccount 開戶並回傳帳戶 ID
func (f *fixture) newAccount(t *testing.T, name string, balance int64) int64 {
	t.Helper()
	acc, err := f.store.CreateAccount(context.Background(), name, name+"@example.com", balance)
	require.NoError(t, err)
	return acc.ID
}

func (f *fixture) balance(t *testing.T, accountID int64) int64 {
	t.Helper()
	balance, err := f.store.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return balance
}
