package logger // 全局 zerolog 日志实例及辅助函数

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger 全局日志实例
	Logger = log.Logger
)

// Config 日志配置
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否输出调用位置
	Service      string `json:"service" yaml:"service"`             // 写入每条日志的服务名
}

// Init 按配置初始化全局日志，输出到标准输出
func Init(config Config) {
	InitWithWriter(config, os.Stdout)
}

// InitWithWriter 按配置初始化全局日志，输出到指定 writer（多路输出、测试）
func InitWithWriter(config Config, out io.Writer) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	output := out
	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: config.TimeFormat,
		}
	}

	builder := zerolog.New(output).Level(level).With().Timestamp()
	if config.Service != "" {
		builder = builder.Str("service", config.Service)
	}
	if config.ReportCaller {
		builder = builder.Caller()
	}

	Logger = builder.Logger()
	log.Logger = Logger
}

// Debug 调试级别
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 信息级别
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 警告级别
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 错误级别
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 记录后退出进程
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// ForResume 返回带 resume_id 字段的子 logger
func ForResume(id string) zerolog.Logger {
	return Logger.With().Str("resume_id", id).Logger()
}

// Ctx 从上下文取 logger；上下文里没有时返回全局 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &Logger
	}
	return l
}

// WithContext 把全局 logger 放入上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
