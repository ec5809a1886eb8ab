// Package app 组装打标流水线，供 server、worker 和 tagctl 共用
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/database"
	"github.com/qs3c/autotag_server/internal/pkg/cache"
	"github.com/qs3c/autotag_server/internal/pkg/cron"
	"github.com/qs3c/autotag_server/internal/pkg/llm"
	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
	"github.com/qs3c/autotag_server/internal/pkg/queue"
	"github.com/qs3c/autotag_server/internal/pkg/tagapi"
	"github.com/qs3c/autotag_server/internal/predictor"
	"github.com/qs3c/autotag_server/internal/repository"
	"github.com/qs3c/autotag_server/internal/scoring"
	"github.com/qs3c/autotag_server/internal/service"
	"github.com/qs3c/autotag_server/internal/worker"
)

const taxonomyCachePrefix = "autotag:taxonomy:"

// Repositories 所有数据访问对象
type Repositories struct {
	Jobs     *repository.JobRepository
	Assets   *repository.AssetRepository
	Reviews  *repository.ReviewRepository
	Tags     *repository.TagRepository
	Settings *repository.SettingRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Jobs:     repository.NewJobRepository(db),
		Assets:   repository.NewAssetRepository(db),
		Reviews:  repository.NewReviewRepository(db),
		Tags:     repository.NewTagRepository(db),
		Settings: repository.NewSettingRepository(db),
	}
}

// Pipeline 调度器及其依赖
type Pipeline struct {
	Repos      *Repositories
	Taxonomy   *service.TaxonomyService
	Processor  *worker.Processor
	Dispatcher *worker.Dispatcher
	WakeQueue  *queue.Queue
	Publisher  *pubsub.Publisher
}

// NewPipeline 后台任务使用独立的 context，关闭时由 Dispatcher.Wait 等待其结束
func NewPipeline(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Pipeline {
	repos := NewRepositories(db)

	taxonomy := service.NewTaxonomyService(repos.Tags, cache.New(rdb, taxonomyCachePrefix, cfg.Cache.TaxonomyTTL))
	pred := predictor.New(llm.NewClient(cfg.LLM), taxonomy)
	publisher := pubsub.NewPublisher(rdb)

	processor := worker.NewProcessor(
		repos.Jobs,
		repos.Assets,
		repos.Reviews,
		repos.Tags,
		repos.Settings,
		pred,
		tagapi.NewClient(cfg.TaggingAPI),
		publisher,
		scoring.WeightsFromConfig(cfg.Scoring),
	)

	return &Pipeline{
		Repos:      repos,
		Taxonomy:   taxonomy,
		Processor:  processor,
		Dispatcher: worker.NewDispatcher(context.Background(), repos.Jobs, processor, cfg.Queue.ClaimBatchSize),
		WakeQueue:  queue.NewQueue(rdb, cfg.Queue.WakeQueue),
		Publisher:  publisher,
	}
}

// Scheduler 周期 tick 加唤醒队列触发
func (p *Pipeline) Scheduler(cfg config.QueueConfig) *cron.Service {
	tick := func(ctx context.Context) error {
		_, err := p.Dispatcher.Tick(ctx)
		return err
	}
	return cron.NewService(tick, p.WakeQueue, cfg.TickInterval, cfg.TickJitter)
}

// Drain 停止调度（可为 nil）后等待已派发的任务结束，/dispatch 派发的任务同样会被等待
func (p *Pipeline) Drain(scheduler *cron.Service) {
	if scheduler != nil {
		scheduler.Stop()
	}
	p.Dispatcher.Wait()
}

// Connect 按配置连接数据库和 Redis，并执行迁移
func Connect(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, rdb, nil
}
