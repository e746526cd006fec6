// 包 logger：统一初始化与获取日志器；级别与格式由环境变量控制，业务代码通过 L()/Component() 取用
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Options：日志器参数；零值等价于 info 级别、文本格式、输出到标准错误
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// OptionsFromEnv：读取 LOG_LEVEL / LOG_FORMAT
func OptionsFromEnv() Options {
	return Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")}
}

// Setup：按环境变量初始化默认日志器
func Setup() *slog.Logger { return SetupWith(OptionsFromEnv()) }

// 文档注释：按参数初始化默认日志器
// 背景：测试与命令行工具需要指定输出目标或静默；服务进程走 Setup。
func SetupWith(o Options) *slog.Logger {
	lvl := parseLevel(o.Level)
	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	var h slog.Handler
	if strings.ToLower(o.Format) == "json" {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	}
	l := slog.New(h)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return Setup()
	}
	return l
}

// Component：附带 component 属性的子日志器，便于按模块过滤
func Component(name string) *slog.Logger { return L().With("component", name) }
