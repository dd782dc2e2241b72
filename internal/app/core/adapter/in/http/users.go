package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// 開戶時的初始餘額 (最小貨幣單位)
// 對齊既有開戶流程：每位新用戶配發 100.00
const openingBalance = 10000

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Balance string `json:"balance"`
}

// createUser POST /users
// 開戶是外部協作流程，核心只負責把帳戶落地；餘額之後只經由結算異動
func (s *Server) createUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and email are required"})
	}

	acc, err := s.ledger.CreateAccount(c.Context(), req.Name, req.Email, openingBalance)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(userResponse{
		ID:      acc.ID,
		Name:    acc.Name,
		Email:   acc.Email,
		Balance: formatAmount(acc.Balance),
	})
}

// getUser GET /users/:id
func (s *Server) getUser(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	acc, err := s.ledger.GetAccount(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(userResponse{
		ID:      acc.ID,
		Name:    acc.Name,
		Email:   acc.Email,
		Balance: formatAmount(acc.Balance),
	})
}
