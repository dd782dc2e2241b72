package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	http_adapter "github.com/minipay/minipay/internal/app/core/adapter/in/http"
	memory_adapter "github.com/minipay/minipay/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/minipay/minipay/internal/app/core/adapter/out/mysql"
	"github.com/minipay/minipay/internal/app/core/adapter/out/processor"
	"github.com/minipay/minipay/internal/app/core/usecase"
	"github.com/minipay/minipay/internal/app/report"
	"github.com/minipay/minipay/pkg/logger"
	"github.com/minipay/minipay/pkg/mysql"
	"github.com/minipay/minipay/pkg/wal"
)

func main() {
	// 1. 載入設定
	cfg := loadConfig()

	zlog, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// 2. 初始化儲存後端
	var ledger usecase.Ledger
	var txLog usecase.TransactionLog

	switch cfg.Ledger.Backend {
	case LedgerBackendMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL, zlog.Named("mysql"))
		if err != nil {
			zlog.Fatal("failed to connect to mysql", zap.Error(err))
		}
		defer dbClient.Close()
		zlog.Info("connected to mysql")

		store := mysql_adapter.NewStore(dbClient)
		if err := store.Migrate(); err != nil {
			zlog.Fatal("failed to migrate schema", zap.Error(err))
		}
		ledger, txLog = store, store
	case LedgerBackendMemory:
		// 初始化 WAL，重啟時重放還原狀態
		walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
		if err != nil {
			zlog.Fatal("failed to init wal", zap.Error(err))
		}
		defer walFile.Close()

		store, err := memory_adapter.NewStore(walFile)
		if err != nil {
			zlog.Fatal("failed to init memory store", zap.Error(err))
		}
		ledger, txLog = store, store
	default:
		zlog.Fatal("invalid ledger backend", zap.String("backend", string(cfg.Ledger.Backend)))
	}

	// 3. 初始化 UseCase
	dispatcher := processor.NewClient(cfg.Processor, zlog.Named("processor"))
	manager := usecase.NewTransactionManager(ledger, txLog, dispatcher, zlog.Named("manager"))
	callbacks := usecase.NewCallbackHandler(txLog, zlog.Named("callback"))

	// 4. 對帳掃描：逾期 pending 收斂成 failed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := usecase.NewReconciler(txLog, cfg.Reconcile.PendingTTL, cfg.Reconcile.Interval, zlog.Named("reconciler"))
	go reconciler.Run(ctx)

	// 5. 每日報表排程 (核心狀態的唯讀消費者)
	if cfg.Report.Enabled {
		generator := report.NewGenerator(txLog, ledger, report.NewMailer(cfg.Report.SMTP), zlog.Named("report"))
		scheduler, err := report.NewScheduler(cfg.Report.Cron, generator, zlog.Named("report"))
		if err != nil {
			zlog.Fatal("failed to init report scheduler", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// 6. 啟動 HTTP Server
	server := http_adapter.NewServer(manager, callbacks, ledger, zlog.Named("http"))
	go func() {
		zlog.Info("starting http server", zap.String("addr", cfg.Server.Addr))
		if err := server.Listen(cfg.Server.Addr); err != nil {
			zlog.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server...")

	cancel()
	if err := server.Shutdown(); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	zlog.Info("server exited")
}
