package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"resumind/internal/analyzer"
	"resumind/internal/api/handler"
	"resumind/internal/api/router"
	"resumind/internal/config"
	"resumind/internal/document"
	"resumind/internal/llm"
	appCoreLogger "resumind/internal/logger"
	"resumind/internal/outbox"
	"resumind/internal/preview"
	"resumind/internal/storage"
	"resumind/internal/tracing"
)

var (
	version     = "1.0.0"    //nolint:gochecknoglobals
	serviceName = "resumind" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	initLogger(cfg.Logger)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, version)
	if err != nil {
		glog.Warnf("初始化链路追踪失败，继续运行: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	events, relay := initEvents(cfg, storageManager)
	if relay != nil {
		relay.Start()
		glog.Info("消息中继服务已启动")
	}

	extractor, err := document.NewTextExtractor(ctx)
	if err != nil {
		glog.Fatalf("创建文档文本提取器失败: %v", err)
	}

	chatModel, err := llm.NewChatModel(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化聊天模型失败: %v", err)
	}
	glog.Infof("聊天模型初始化成功, provider: %s", cfg.LLM.Provider)

	feedbackClient := llm.NewEinoFeedbackClient(storageManager.Objects, extractor, chatModel, cfg.LLM.MaxDocumentChars)

	converter, err := preview.NewConverter(cfg.Preview)
	if err != nil {
		glog.Fatalf("初始化预览图转换器失败: %v", err)
	}

	statusBoard := analyzer.NewKVStatusBoard(storageManager.KV)
	resumeAnalyzer := analyzer.New(
		storageManager.Objects,
		storageManager.KV,
		converter,
		feedbackClient,
		analyzer.WithEvents(events),
		analyzer.WithStatusReporter(statusBoard),
		analyzer.WithAIRetry(cfg.Analyzer.AIMaxRetries, config.GetDuration(cfg.Analyzer.AIRetryWait, 2*time.Second)),
		analyzer.WithResultsPath(cfg.Analyzer.ResultsPathFmt),
	)
	glog.Info("简历分析流程初始化成功")

	resumeHandler := handler.NewResumeHandler(
		storageManager.KV,
		storageManager.Objects,
		resumeAnalyzer,
		statusBoard,
		handler.WithMaxFileSize(int64(cfg.Analyzer.MaxFileSizeMB)<<20),
	)
	systemHandler := handler.NewSystemHandler(storageManager, version)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB<<20),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxDebugf(c, "%s %s -> %d (%s)", string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, cfg.Auth, resumeHandler, systemHandler)
	glog.Infof("HTTP 服务器启动中，监听地址: %s, 鉴权: %v", cfg.Server.Address, cfg.Auth.Enabled)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if relay != nil {
		relay.Stop()
		glog.Info("消息中继服务已停止")
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}
	glog.Info("优雅退出完成")
}

// initEvents 有数据库时走 outbox 表 + 中继；只有 RabbitMQ 时直接发布；都没有时丢弃
func initEvents(cfg *config.Config, s *storage.Storage) (outbox.Enqueuer, *outbox.MessageRelay) {
	if s.RabbitMQ == nil {
		glog.Info("未配置 RabbitMQ，分析完成事件将被丢弃")
		return outbox.Discard{}, nil
	}

	exchange := cfg.RabbitMQ.ResumeEventsExchange
	routingKey := cfg.RabbitMQ.AnalyzedRoutingKey
	if err := s.RabbitMQ.EnsureExchange(exchange, "topic", true); err != nil {
		glog.Warnf("声明交换机 %s 失败: %v", exchange, err)
	}

	if s.DB == nil {
		return outbox.NewDirectPublisher(s.RabbitMQ, exchange, routingKey), nil
	}
	return outbox.NewOutbox(s.DB.DB(), exchange, routingKey), outbox.NewMessageRelay(s.DB.DB(), s.RabbitMQ, cfg.Outbox)
}

func initLogger(cfg config.LoggerConfig) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "创建日志目录失败: %v\n", err)
		} else if fileWriter, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "无法打开日志文件 %s: %v\n", cfg.File, err)
		} else {
			// 控制台按配置格式输出，文件始终写 JSON
			var console io.Writer = os.Stdout
			if cfg.Format == "pretty" {
				console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
			}
			out = zerolog.MultiLevelWriter(console, fileWriter)
			cfg.Format = "json"
		}
	}

	appCoreLogger.InitWithWriter(appCoreLogger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		TimeFormat:   cfg.TimeFormat,
		ReportCaller: cfg.ReportCaller,
		Service:      serviceName,
	}, out)
	zlog.Logger = appCoreLogger.Logger

	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	if level, err := zerolog.ParseLevel(cfg.Level); err == nil && level <= zerolog.DebugLevel {
		glog.SetLevel(glog.LevelDebug)
	} else {
		glog.SetLevel(glog.LevelInfo)
	}
}
