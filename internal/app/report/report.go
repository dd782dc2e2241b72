package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

const sheetName = "Daily Transactions"

// TransactionLister 報表只需要交易的讀取介面，與核心狀態沒有其他耦合
type TransactionLister interface {
	List(ctx context.Context, rng usecase.TimeRange) ([]*domain.Transaction, error)
}

// AccountReader 取帳戶顯示名稱用
type AccountReader interface {
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
}

// Sender 報表寄送介面
type Sender interface {
	Send(subject, filename string, content []byte) error
}

// Generator 產生每日交易報表 (xlsx) 並寄出
// 視窗固定為 [昨日 00:00, 今日 00:00)；產製失敗只記錄，永不影響核心
type Generator struct {
	lister TransactionLister
	ledger AccountReader
	sender Sender
	logger *zap.Logger
}

func NewGenerator(lister TransactionLister, ledger AccountReader, sender Sender, logger *zap.Logger) *Generator {
	return &Generator{
		lister: lister,
		ledger: ledger,
		sender: sender,
		logger: logger,
	}
}

// Window 回傳 day 當日的報表視窗 [day 00:00, 次日 00:00)
// 閉區間的 End 取次日 00:00 的前一奈秒
func Window(day time.Time) usecase.TimeRange {
	start := usecase.StartOfDay(day)
	end := usecase.EndOfDay(day)
	return usecase.TimeRange{Start: &start, End: &end}
}

// Build 產生 day 當日的報表內容
func (g *Generator) Build(ctx context.Context, day time.Time) ([]byte, int, error) {
	trans, err := g.lister.List(ctx, Window(day))
	if err != nil {
		return nil, 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, 0, err
	}

	header := []any{"Transaction ID", "From User", "To User", "Amount", "Status", "Created At"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, 0, err
	}

	names := map[int64]string{}
	for i, tran := range trans {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, 0, err
		}
		row := []any{
			tran.ID.String(),
			g.accountName(ctx, names, tran.FromAccountID),
			g.accountName(ctx, names, tran.ToAccountID),
			float64(tran.Amount) / domain.CurrencyScale,
			string(tran.State),
			tran.CreatedAt.Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, 0, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(trans), nil
}

func (g *Generator) accountName(ctx context.Context, cache map[int64]string, id int64) string {
	if name, ok := cache[id]; ok {
		return name
	}
	acc, err := g.ledger.GetAccount(ctx, id)
	if err != nil {
		cache[id] = ""
		return ""
	}
	cache[id] = acc.Name
	return acc.Name
}

// Run 產生並寄出「昨日」的報表
func (g *Generator) Run(ctx context.Context, now time.Time) error {
	day := now.AddDate(0, 0, -1)
	content, count, err := g.Build(ctx, day)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	date := usecase.StartOfDay(day).Format("2006-01-02")
	subject := fmt.Sprintf("Daily Transaction Report - %s", date)
	filename := fmt.Sprintf("transactions-%s.xlsx", date)
	if err := g.sender.Send(subject, filename, content); err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	g.logger.Info("daily report sent",
		zap.String("date", date),
		zap.Int("transactions", count),
	)
	return nil
}
