package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// processor-sim 模擬外部金流商：
// 收到結算請求先 ack，延遲 2~5 秒後以回呼送出 completed / failed (預設 90% 成功)

type processRequest struct {
	TransactionID string `json:"transactionId"`
	FromAccountID int64  `json:"fromAccountId"`
	ToAccountID   int64  `json:"toAccountId"`
	Amount        int64  `json:"amount"`
}

type callbackRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	callbackURL := flag.String("callback", "http://localhost:3000/transactions/payment-callback", "core callback URL")
	successRate := flag.Float64("success-rate", 0.9, "fraction of settlements reported as completed")
	minDelay := flag.Duration("min-delay", 2*time.Second, "minimum settlement delay")
	maxDelay := flag.Duration("max-delay", 5*time.Second, "maximum settlement delay")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/process-payment", func(c *fiber.Ctx) error {
		var req processRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}

		// 先 ack，結果之後回呼
		go func() {
			delay := *minDelay + rand.N(*maxDelay-*minDelay+1)
			time.Sleep(delay)

			status := "completed"
			if rand.Float64() >= *successRate {
				status = "failed"
			}

			body, _ := json.Marshal(callbackRequest{
				TransactionID: req.TransactionID,
				Status:        status,
			})
			resp, err := client.Post(*callbackURL, "application/json", bytes.NewReader(body))
			if err != nil {
				log.Printf("callback failed: %v (transaction %s)", err, req.TransactionID)
				return
			}
			resp.Body.Close()
			log.Printf("settled %s as %s (http %d)", req.TransactionID, status, resp.StatusCode)
		}()

		return c.JSON(fiber.Map{"accepted": true})
	})

	log.Printf("payment processor simulator listening on %s", *addr)
	if err := app.Listen(*addr); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
