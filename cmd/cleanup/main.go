package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/database"
	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/logger"
	"github.com/qs3c/autotag_server/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, only count jobs that would be deleted")
	retentionDays = flag.Int("days", 0, "Days to keep finished jobs (0 uses queue.retention_days)")
)

// pruneSummary 一次清理的统计
type pruneSummary struct {
	Cutoff  time.Time
	Before  map[model.JobStatus]int64
	Matched int64
	DryRun  bool
}

func main() {
	flag.Parse()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	flush := logger.Setup(cfg.Log.Level)
	defer flush()
	logs := zap.S().Named("cleanup")

	days := *retentionDays
	if days <= 0 {
		days = cfg.Queue.RetentionDays
	}
	logs.Infow("starting cleanup task", "dry_run", *dryRun, "retention_days", days)

	// 连接数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		logs.Fatalw("failed to connect database", "error", err)
	}

	summary, err := prune(context.Background(), repository.NewJobRepository(db), days, *dryRun, time.Now())
	if err != nil {
		logs.Fatalw("cleanup failed", "error", err)
	}

	// 输出统计
	logs.Info(strings.Repeat("=", 60))
	logs.Infow("cleanup summary",
		"cutoff", summary.Cutoff.Format(time.RFC3339),
		"completed", summary.Before[model.JobStatusCompleted],
		"failed", summary.Before[model.JobStatusFailed],
		"matched", summary.Matched,
	)
	if summary.DryRun {
		logs.Info("DRY RUN MODE - no jobs were actually deleted, run with -dry-run=false to delete")
	} else {
		logs.Info("cleanup completed")
	}
	logs.Info(strings.Repeat("=", 60))
}

// prune 删除 days 天前结束的终态任务，审核记录保留
func prune(ctx context.Context, jobRepo *repository.JobRepository, days int, dryRun bool, now time.Time) (*pruneSummary, error) {
	counts, err := jobRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	matched, err := jobRepo.PruneTerminal(ctx, cutoff, dryRun)
	if err != nil {
		return nil, err
	}

	return &pruneSummary{
		Cutoff:  cutoff,
		Before:  counts,
		Matched: matched,
		DryRun:  dryRun,
	}, nil
}
