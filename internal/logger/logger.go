// Package logger 基于 zerolog 的全局日志封装
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	log  zerolog.Logger
	once sync.Once
)

func init() {
	// 未调用 Setup 时的兜底：输出到 stderr（测试和调试工具场景）
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// Options 日志初始化选项
type Options struct {
	Level    string // debug, info, warn, error
	FilePath string // 日志文件路径，空则不写文件
	Stdout   bool   // 是否同时输出到控制台
}

// Setup 初始化日志系统
func Setup(opts Options) error {
	var err error

	once.Do(func() {
		var writers []io.Writer

		if opts.FilePath != "" {
			if mkErr := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); mkErr != nil {
				err = fmt.Errorf("failed to create log dir: %w", mkErr)
				return
			}
			f, openErr := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if openErr != nil {
				err = fmt.Errorf("failed to open log file %s: %w", opts.FilePath, openErr)
				return
			}
			writers = append(writers, f)
		}

		if opts.Stdout || len(writers) == 0 {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
		}

		level := parseLevel(opts.Level)
		log = zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp().Logger()
	})

	return err
}

// parseLevel 解析日志级别，未知值回退为 info
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug 输出调试日志（键值对参数）
func Debug(msg string, kv ...interface{}) {
	emit(log.Debug(), msg, kv)
}

// Info 输出信息日志
func Info(msg string, kv ...interface{}) {
	emit(log.Info(), msg, kv)
}

// Warn 输出警告日志
func Warn(msg string, kv ...interface{}) {
	emit(log.Warn(), msg, kv)
}

// Error 输出错误日志
func Error(msg string, kv ...interface{}) {
	emit(log.Error(), msg, kv)
}

// emit 将键值对附加到事件后输出
func emit(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
