package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/app"
	"github.com/qs3c/autotag_server/internal/pkg/logger"
)

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
	logs := zap.S().Named("worker")

	// 初始化数据库和 Redis
	db, rdb, err := app.Connect(cfg)
	if err != nil {
		logs.Fatalw("failed to connect storage", "error", err)
	}
	defer rdb.Close()
	logs.Infow("storage connected", "driver", cfg.Database.Driver)

	// 创建调度器
	pipeline := app.NewPipeline(cfg, db, rdb)
	scheduler := pipeline.Scheduler(cfg.Queue)

	// 监听退出信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start()
	logs.Infow("worker started",
		"batch_size", cfg.Queue.ClaimBatchSize,
		"interval", cfg.Queue.TickInterval,
		"wake_queue", cfg.Queue.WakeQueue,
	)

	<-ctx.Done()
	logs.Info("received shutdown signal")

	// 先停止领取新任务，再等待进行中的任务结束
	pipeline.Drain(scheduler)
	logs.Info("worker shutdown complete")
}
