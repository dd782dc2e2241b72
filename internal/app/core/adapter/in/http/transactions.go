package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minipay/minipay/internal/app/core/domain"
)

const dateLayout = "2006-01-02"

// createTransactionRequest 建立轉帳的請求
// amount 可以是 JSON 數字或字串，以 decimal 解析後換算成最小貨幣單位
type createTransactionRequest struct {
	FromUserID int64           `json:"fromUserId"`
	ToUserID   int64           `json:"toUserId"`
	Amount     decimal.Decimal `json:"amount"`
}

// paymentCallbackRequest 金流商回呼的請求
type paymentCallbackRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// transactionResponse 交易的對外表示，帶上雙方帳戶的顯示名稱
type transactionResponse struct {
	ID            string     `json:"id"`
	FromAccountID int64      `json:"fromUserId"`
	FromName      string     `json:"fromName,omitempty"`
	ToAccountID   int64      `json:"toUserId"`
	ToName        string     `json:"toName,omitempty"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
}

// toMinorUnits 將 decimal 金額換算為最小貨幣單位
// 精度超過 CurrencyScale 的金額直接拒絕，不做四捨五入
func toMinorUnits(d decimal.Decimal) (int64, error) {
	v := d.Mul(decimal.NewFromInt(domain.CurrencyScale))
	if !v.IsInteger() {
		return 0, domain.ErrInvalidAmount
	}
	return v.IntPart(), nil
}

// formatAmount 最小貨幣單位轉回十進位字串
func formatAmount(minor int64) string {
	return decimal.New(minor, 0).Div(decimal.NewFromInt(domain.CurrencyScale)).String()
}

func (s *Server) toResponse(c *fiber.Ctx, tran *domain.Transaction, names map[int64]string) transactionResponse {
	resolveName := func(id int64) string {
		if name, ok := names[id]; ok {
			return name
		}
		acc, err := s.ledger.GetAccount(c.Context(), id)
		if err != nil {
			names[id] = ""
			return ""
		}
		names[id] = acc.Name
		return acc.Name
	}

	return transactionResponse{
		ID:            tran.ID.String(),
		FromAccountID: tran.FromAccountID,
		FromName:      resolveName(tran.FromAccountID),
		ToAccountID:   tran.ToAccountID,
		ToName:        resolveName(tran.ToAccountID),
		Amount:        formatAmount(tran.Amount),
		Status:        string(tran.State),
		CreatedAt:     tran.CreatedAt,
		DecidedAt:     tran.DecidedAt,
	}
}

// createTransaction POST /transactions
// 受理即回 201 (state=pending)，結算結果之後由金流商回呼送達
func (s *Server) createTransaction(c *fiber.Ctx) error {
	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	amount, err := toMinorUnits(req.Amount)
	if err != nil {
		return s.fail(c, err)
	}

	tran, err := s.manager.Create(c.Context(), req.FromUserID, req.ToUserID, amount)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(s.toResponse(c, tran, map[int64]string{}))
}

// listTransactions GET /transactions?startDate=&endDate=
// 起訖為日期 (YYYY-MM-DD)，以日為粒度的閉區間
func (s *Server) listTransactions(c *fiber.Ctx) error {
	var startDate, endDate *time.Time

	if raw := c.Query("startDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid startDate"})
		}
		startDate = &t
	}
	if raw := c.Query("endDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid endDate"})
		}
		endDate = &t
	}

	trans, err := s.manager.List(c.Context(), startDate, endDate)
	if err != nil {
		return s.fail(c, err)
	}

	names := map[int64]string{}
	result := make([]transactionResponse, 0, len(trans))
	for _, tran := range trans {
		result = append(result, s.toResponse(c, tran, names))
	}
	return c.JSON(result)
}

// paymentCallback POST /transactions/payment-callback
// 金流商的結算回呼：冪等、可重送、可延遲，結果一律以落地後的交易狀態回應
func (s *Server) paymentCallback(c *fiber.Ctx) error {
	var req paymentCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	id, err := uuid.Parse(req.TransactionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid transactionId"})
	}

	tran, err := s.callbacks.Resolve(c.Context(), id, req.Status)
	if err != nil {
		// 結算時餘額不足：交易已落地為 failed，回應帶上最終狀態
		if tran != nil {
			return c.Status(statusFromError(err)).JSON(fiber.Map{
				"error":       err.Error(),
				"transaction": s.toResponse(c, tran, map[int64]string{}),
			})
		}
		return s.fail(c, err)
	}

	return c.JSON(s.toResponse(c, tran, map[int64]string{}))
}
