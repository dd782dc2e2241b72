package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
)

func testTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        1234,
		State:         domain.StatePending,
		CreatedAt:     time.Now(),
	}
}

func TestDispatchSendsSettlementRequest(t *testing.T) {
	var got settlementRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop())
	tran := testTransaction()

	require.NoError(t, client.Dispatch(context.Background(), tran))
	assert.Equal(t, tran.ID.String(), got.TransactionID)
	assert.Equal(t, int64(1), got.FromAccountID)
	assert.Equal(t, int64(2), got.ToAccountID)
	assert.Equal(t, int64(1234), got.Amount)
}

func TestDispatchNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop())
	err := client.Dispatch(context.Background(), testTransaction())
	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{
		URL:                server.URL,
		BreakerMaxFailures: 2,
		BreakerOpenFor:     time.Minute,
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, client.Dispatch(context.Background(), testTransaction()), domain.ErrDispatchFailed)
	}
	assert.Equal(t, int64(2), hits.Load())

	// 熔斷後快速失敗，不再打到金流商
	assert.ErrorIs(t, client.Dispatch(context.Background(), testTransaction()), domain.ErrDispatchFailed)
	assert.Equal(t, int64(2), hits.Load())
}
