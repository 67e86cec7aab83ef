package logx

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 描述日志输出；零值表示 info 级别、只写 stderr。
type Options struct {
	Level      string // debug|info|warn|error；环境变量 LOG_LEVEL 优先
	File       string // 非空时额外写入滚动日志文件
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel 把字符串映射为 slog.Level；未知值回退 info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup 构造 logger 并设为 slog 默认 logger。
// 返回的 io.Closer 用于关闭日志文件（未启用文件时为 no-op）。
//
// 约束：日志永远不写 stdout（stdout 留给 JSON 输出契约）。
func Setup(stderr io.Writer, opt Options) (*slog.Logger, io.Closer, error) {
	level := opt.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}

	w := stderr
	var closer io.Closer = nopCloser{}
	if f := strings.TrimSpace(opt.File); f != "" {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return nil, nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    orDefault(opt.MaxSizeMB, 10),
			MaxBackups: orDefault(opt.MaxBackups, 3),
		}
		w = io.MultiWriter(stderr, lj)
		closer = lj
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger, closer, nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
