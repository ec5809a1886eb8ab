package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/api"
	"github.com/qs3c/autotag_server/internal/api/handler"
	"github.com/qs3c/autotag_server/internal/app"
	"github.com/qs3c/autotag_server/internal/pkg/cron"
	"github.com/qs3c/autotag_server/internal/pkg/logger"
	"github.com/qs3c/autotag_server/internal/pkg/metrics"
	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
	"github.com/qs3c/autotag_server/internal/pkg/ws"
	"github.com/qs3c/autotag_server/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	flush := logger.Setup(cfg.Log.Level)
	defer flush()
	logs := zap.S().Named("server")

	// 初始化数据库和 Redis
	db, rdb, err := app.Connect(cfg)
	if err != nil {
		logs.Fatalw("failed to connect storage", "error", err)
	}
	defer rdb.Close()
	logs.Infow("storage connected", "driver", cfg.Database.Driver)

	// 初始化流水线
	pipeline := app.NewPipeline(cfg, db, rdb)

	// 初始化 Service
	subscriber := pubsub.NewSubscriber(rdb)
	taggingService := service.NewTaggingService(
		pipeline.Repos.Jobs,
		pipeline.Repos.Assets,
		pipeline.Repos.Settings,
		pipeline.Repos.Reviews,
		pipeline.WakeQueue,
		subscriber,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 WebSocket Hub，转发任务事件
	wsHub := ws.NewHub()
	go func() {
		if err := wsHub.Run(ctx, subscriber); err != nil && !errors.Is(err, context.Canceled) {
			logs.Errorw("job event forwarding stopped", "error", err)
		}
	}()
	logs.Info("websocket hub started")

	// 初始化 Handler
	taggingHandler := handler.NewTaggingHandler(taggingService)
	dispatchHandler := handler.NewDispatchHandler(pipeline.Dispatcher)
	healthHandler := handler.NewHealthHandler(db, rdb)
	eventsHandler := handler.NewEventsHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins)

	// 初始化 HTTP 指标
	httpMetrics := metrics.NewMiddleware("autotag_api")
	httpMetrics.MustRegister(prometheus.DefaultRegisterer)

	// 初始化 Router
	router := api.NewRouter(taggingHandler, dispatchHandler, healthHandler, eventsHandler, httpMetrics, cfg)
	engine := router.Setup()

	// 内嵌调度循环
	var scheduler *cron.Service
	if cfg.Server.EmbedDispatcher {
		scheduler = pipeline.Scheduler(cfg.Queue)
		scheduler.Start()
		logs.Infow("embedded dispatcher started", "interval", cfg.Queue.TickInterval)
	}

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logs.Infow("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorw("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logs.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Errorw("server shutdown failed", "error", err)
	}

	// 等待调度和 /dispatch 派发的任务结束
	pipeline.Drain(scheduler)
	logs.Info("server shutdown complete")
}
