package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例，Init 之前为 no-op，测试中无需初始化
var Log = zap.NewNop()

// Init 初始化日志
// dev 环境使用彩色的开发者格式，其余环境使用 JSON
func Init(env string, debug bool) error {
	var cfg zap.Config
	if env == "dev" || env == "" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return err
	}
	Log = l
	zap.ReplaceGlobals(l)
	return nil
}

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	_ = Log.Sync()
}
