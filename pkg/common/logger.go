// Package common 提供日志与错误处理等基础设施
package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 日志级别类型
type LogLevel string

// 日志级别常量
const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      LogLevel `yaml:"level"`       // 日志级别
	Filename   string   `yaml:"file"`        // 日志文件路径，空表示仅控制台
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大大小（MB）
	MaxBackups int      `yaml:"max_backups"` // 最大保留历史日志文件数
	MaxAge     int      `yaml:"max_age"`     // 日志文件保留天数
	Compress   bool     `yaml:"compress"`    // 是否压缩历史日志
	Console    bool     `yaml:"console"`     // 是否同时输出到控制台
}

// NewLogger 按配置创建zap日志器
// 配置了文件路径时启用lumberjack轮转，否则输出到控制台
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var writers []io.Writer

	atom := zap.NewAtomicLevelAt(zapLevel(cfg.Level))

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Filename != "" {
		logDir := filepath.Dir(cfg.Filename)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(io.MultiWriter(writers...)),
		atom,
	)

	return zap.New(core, zap.AddCaller()), nil
}

// zapLevel 将配置级别转换为zap级别
func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
