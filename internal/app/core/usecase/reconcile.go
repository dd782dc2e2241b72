package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler 對帳掃描
// 金流商失聯時交易會永遠停在 pending，對帳掃描在逾時後把它們收斂成 failed，
// 走的是與回呼相同的儲存層 CAS 路徑，不會與慢到的回呼產生雙重結算
type Reconciler struct {
	log        TransactionLog
	pendingTTL time.Duration
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(log TransactionLog, pendingTTL, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		log:        log,
		pendingTTL: pendingTTL,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

// Run 以固定間隔執行掃描，直到 ctx 結束
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep 執行一次掃描：逾期的 pending 交易轉為 failed
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.pendingTTL)
	n, err := r.log.SettleExpired(ctx, cutoff)
	if err != nil {
		r.logger.Error("reconcile sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("expired pending transactions failed by reconciler",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff),
		)
	}
}
