package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

// Server HTTP 進入點 (Driving Adapter)
// 路由對齊既有的對外介面：/users、/transactions、/transactions/payment-callback
type Server struct {
	app       *fiber.App
	manager   *usecase.TransactionManager
	callbacks *usecase.CallbackHandler
	ledger    usecase.Ledger
	logger    *zap.Logger
}

func NewServer(manager *usecase.TransactionManager, callbacks *usecase.CallbackHandler, ledger usecase.Ledger, logger *zap.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		manager:   manager,
		callbacks: callbacks,
		ledger:    ledger,
		logger:    logger,
	}

	s.app.Use(cors.New())

	s.app.Post("/users", s.createUser)
	s.app.Get("/users/:id", s.getUser)

	s.app.Get("/transactions", s.listTransactions)
	s.app.Post("/transactions", s.createTransaction)
	s.app.Post("/transactions/payment-callback", s.paymentCallback)

	return s
}

// App 回傳底層 fiber 實例 (測試用)
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen 啟動 HTTP 服務
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown 停止接受新請求並等待進行中的請求結束
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// statusFromError 把領域錯誤映射成 HTTP 狀態碼
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrTransactionAlreadyProcessed),
		errors.Is(err, domain.ErrInvalidVerdict),
		errors.Is(err, domain.ErrAccountAlreadyExists):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// fail 統一的錯誤回應格式
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFromError(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
