package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

func TestSweepFailsExpiredPending(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	insert := func(age time.Duration) uuid.UUID {
		id := uuid.New()
		require.NoError(t, f.store.Insert(ctx, &domain.Transaction{
			ID:            id,
			FromAccountID: alice,
			ToAccountID:   bob,
			Amount:        10,
			State:         domain.StatePending,
			CreatedAt:     time.Now().Add(-age),
		}))
		return id
	}

	stale := insert(time.Hour)
	fresh := insert(time.Minute)

	reconciler := usecase.NewReconciler(f.store, 30*time.Minute, time.Minute, zap.NewNop())
	reconciler.Sweep(ctx)

	// 逾期的收斂成 failed，新鮮的不動
	staleStored, err := f.store.Get(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, staleStored.State)

	freshStored, err := f.store.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, freshStored.State)

	// 對帳不碰帳務
	assert.Equal(t, int64(100), f.balance(t, alice))
	assert.Equal(t, int64(0), f.balance(t, bob))

	// 慢到的回呼在冪等閘門被擋下，不會雙重結算
	_, err = f.callbacks.Resolve(ctx, stale, "completed")
	assert.ErrorIs(t, err, domain.ErrTransactionAlreadyProcessed)
	assert.Equal(t, int64(100), f.balance(t, alice))
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.newAccount(t, "alice", 100)
	bob := f.newAccount(t, "bob", 0)
	ctx := context.Background()

	require.NoError(t, f.store.Insert(ctx, &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: alice,
		ToAccountID:   bob,
		Amount:        10,
		State:         domain.StatePending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}))

	n, err := f.store.SettleExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.store.SettleExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}
