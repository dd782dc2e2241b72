package report

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 以 cron 排程每日報表
// 排程失敗只記錄：報表是核心狀態的唯讀消費者，任何錯誤都不得回灌核心
type Scheduler struct {
	cron      *cron.Cron
	generator *Generator
	logger    *zap.Logger
}

// NewScheduler 建立排程器，spec 為標準 5 欄 cron 表達式 (預設每日 00:00)
func NewScheduler(spec string, generator *Generator, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = "0 0 * * *"
	}

	s := &Scheduler{
		cron:      cron.New(),
		generator: generator,
		logger:    logger,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.generator.Run(ctx, time.Now()); err != nil {
		s.logger.Error("daily report generation failed", zap.Error(err))
	}
}

// Start 啟動排程
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止排程並等待進行中的工作結束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
