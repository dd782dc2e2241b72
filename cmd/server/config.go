package main

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minipay/minipay/internal/app/core/adapter/out/processor"
	"github.com/minipay/minipay/internal/app/report"
	"github.com/minipay/minipay/pkg/mysql"
)

// LedgerBackend 設定使用哪種儲存後端
type LedgerBackend string

const (
	// 正式環境：MySQL (GORM)
	LedgerBackendMySQL LedgerBackend = "mysql"
	// 開發 / 單機：記憶體 + WAL
	LedgerBackendMemory LedgerBackend = "memory"
)

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`
}

type LedgerConfig struct {
	Backend LedgerBackend `yaml:"backend"`
	WALPath string        `yaml:"wal_path"`
}

type ReconcileConfig struct {
	// Interval 掃描間隔
	Interval time.Duration `yaml:"interval"`
	// PendingTTL pending 交易逾時後由對帳掃描轉為 failed
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

type ReportConfig struct {
	Enabled bool              `yaml:"enabled"`
	Cron    string            `yaml:"cron"`
	SMTP    report.SMTPConfig `yaml:"smtp"`
}

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Ledger    LedgerConfig     `yaml:"ledger"`
	MySQL     mysql.Config     `yaml:"mysql"`
	Processor processor.Config `yaml:"processor"`
	Reconcile ReconcileConfig  `yaml:"reconcile"`
	Report    ReportConfig     `yaml:"report"`
}

func loadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	cfgData, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// 補全預設配置 (如果 yaml 沒寫)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3000"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = LedgerBackendMemory
	}
	if cfg.Ledger.WALPath == "" {
		cfg.Ledger.WALPath = "wal.log"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = time.Minute
	}
	if cfg.Reconcile.PendingTTL == 0 {
		cfg.Reconcile.PendingTTL = 15 * time.Minute
	}
	return cfg
}
