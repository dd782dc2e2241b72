package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

// Config 外部金流商連線配置
type Config struct {
	// URL 金流商的結算端點 (POST)
	URL string `yaml:"url"`
	// Timeout 單次請求逾時
	Timeout time.Duration `yaml:"timeout"`
	// BreakerMaxFailures 連續失敗幾次後熔斷
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
	// BreakerOpenFor 熔斷後多久進入半開
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// settlementRequest 送往金流商的結算請求
// 對方只需回 2xx 表示收件，結果之後以回呼送回
type settlementRequest struct {
	TransactionID string `json:"transactionId"`
	FromAccountID int64  `json:"fromAccountId"`
	ToAccountID   int64  `json:"toAccountId"`
	Amount        int64  `json:"amount"`
}

// Client 對外部金流商的 HTTP 出口
// 掛上熔斷器：金流商失聯時快速失敗，交易留在 pending 交給對帳掃描
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openFor := cfg.BreakerOpenFor
	if openFor == 0 {
		openFor = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment processor breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Dispatch 送出結算請求 (best-effort，不消費回應內容)
func (c *Client) Dispatch(ctx context.Context, tran *domain.Transaction) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, tran)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, tran *domain.Transaction) error {
	body, err := json.Marshal(settlementRequest{
		TransactionID: tran.ID.String(),
		FromAccountID: tran.FromAccountID,
		ToAccountID:   tran.ToAccountID,
		Amount:        tran.Amount,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment processor returned status %d", resp.StatusCode)
	}
	return nil
}

var _ usecase.SettlementDispatcher = (*Client)(nil)
