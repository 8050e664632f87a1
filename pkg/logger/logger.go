// Package logger 提供按模块命名的 zap 日志记录器
//
// 所有模块共享同一个 zap core：
//   - 控制台输出（前台模式或未启用文件日志时）
//   - lumberjack 滚动日志文件（log.file_enabled）
//
// 使用示例：
//
//	log := logger.Logging("supervisor")
//	log.Infof("armed on %s", path)
package logger

import (
	"os"
	"sync"

	"watchdogd/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once   sync.Once
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
	root   *zap.Logger
	rotate *lumberjack.Logger
)

// Logging 返回指定名字的子日志记录器
func Logging(name string) *zap.SugaredLogger {
	once.Do(initRoot)

	return root.Named(name).Sugar()
}

// SetLevel 动态调整日志级别，配置重载时调用
func SetLevel(l string) {
	lvl, err := zapcore.ParseLevel(l)
	if err != nil {
		return
	}
	level.SetLevel(lvl)
}

// Sync 刷新缓冲并关闭日志文件
func Sync() {
	if root != nil {
		_ = root.Sync()
	}
	if rotate != nil {
		_ = rotate.Close()
	}
}

func initRoot() {
	cfg := config.GetConfig()
	if cfg == nil {
		root = zap.New(consoleCore(), zap.AddCaller())
		return
	}

	lvl := cfg.Log.Level
	if config.LogLevelFlag != "" {
		lvl = config.LogLevelFlag
	}
	SetLevel(lvl)

	cores := make([]zapcore.Core, 0, 2)
	if config.ForegroundFlag || !cfg.Log.FileEnabled {
		cores = append(cores, consoleCore())
	}

	if cfg.Log.FileEnabled && cfg.Log.FilePath != "" {
		rotate = &lumberjack.Logger{
			Filename:   cfg.Log.FilePath,
			MaxSize:    cfg.Log.FileSize,
			MaxAge:     cfg.Log.MaxAge,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   cfg.Log.FileCompress,
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotate), level))
	}

	root = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func consoleCore() zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
}
