package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 建立 production 設定的 zap logger
//
// 參數:
//
//	level: "debug", "info", "warn", "error"，其餘值視為 info
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}
