package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/metrics"
	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
	"github.com/qs3c/autotag_server/internal/pkg/tagapi"
	"github.com/qs3c/autotag_server/internal/predictor"
	"github.com/qs3c/autotag_server/internal/repository"
	"github.com/qs3c/autotag_server/internal/scoring"
)

// 结果应用阶段，用于日志和指标
const (
	StageSettings = "settings"
	StageReview   = "review"
	StageResolve  = "resolve"
	StageApply    = "apply"
	StageRefresh  = "refresh"
)

// Predictor 为资产生成按来源划分的标签猜测
type Predictor interface {
	Predict(ctx context.Context, in predictor.PredictInput) (*predictor.Prediction, error)
}

// TaggingAPI 外部资产系统的打标接口
type TaggingAPI interface {
	ApplyTags(ctx context.Context, assetExternalID string, tagExternalIDs []string, appendTags bool) error
	FetchAssetsByIds(ctx context.Context, ids []string) ([]tagapi.RemoteAsset, error)
}

// EventPublisher 任务终态事件
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event *pubsub.JobEvent) error
}

// ApplyError 任务完成后应用结果失败，只记录不回滚任务状态
type ApplyError struct {
	Stage string
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply results (%s): %v", e.Stage, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Processor 任务处理器
type Processor struct {
	jobRepo     *repository.JobRepository
	assetRepo   *repository.AssetRepository
	reviewRepo  *repository.ReviewRepository
	tagRepo     *repository.TagRepository
	settingRepo *repository.SettingRepository
	predictor   Predictor
	tagAPI      TaggingAPI
	publisher   EventPublisher
	weights     scoring.Weights
	log         *zap.SugaredLogger
}

// NewProcessor 创建任务处理器，publisher 可以为 nil
func NewProcessor(
	jobRepo *repository.JobRepository,
	assetRepo *repository.AssetRepository,
	reviewRepo *repository.ReviewRepository,
	tagRepo *repository.TagRepository,
	settingRepo *repository.SettingRepository,
	pred Predictor,
	tagAPI TaggingAPI,
	publisher EventPublisher,
	weights scoring.Weights,
) *Processor {
	return &Processor{
		jobRepo:     jobRepo,
		assetRepo:   assetRepo,
		reviewRepo:  reviewRepo,
		tagRepo:     tagRepo,
		settingRepo: settingRepo,
		predictor:   pred,
		tagAPI:      tagAPI,
		publisher:   publisher,
		weights:     weights,
		log:         zap.S().Named("processor"),
	}
}

// Process 处理一个已领取的任务。加载素材、预测或写入结果出错会让任务进入 failed，
// 任务完成后的应用阶段出错只记录日志
func (p *Processor) Process(ctx context.Context, job *model.TaggingJob) error {
	log := p.log.With("job_id", job.ID, "team_id", job.TeamID, "asset_id", job.AssetID)

	asset, err := p.assetRepo.GetByID(ctx, job.AssetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("asset not found, leaving job untouched")
			return nil
		}
		log.Errorw("failed to load asset", "error", err)
		return p.fail(ctx, job, fmt.Errorf("load asset: %w", err))
	}

	prediction, err := p.predictor.Predict(ctx, predictor.PredictInput{
		Asset:   asset,
		TeamID:  job.TeamID,
		Options: job.Options,
	})
	if err != nil {
		if !predictor.IsPredictionError(err) {
			// 分类表或缓存等基础设施错误
			log.Errorw("prediction aborted", "error", err)
			return p.fail(ctx, job, fmt.Errorf("prediction aborted: %w", err))
		}
		log.Warnw("prediction failed", "error", err)
		return p.fail(ctx, job, err)
	}

	scored := p.weights.ScoreTags(prediction.Sources)
	if scored == nil {
		scored = []model.ScoredTag{}
	}
	sources := prediction.Sources
	if sources == nil {
		sources = []model.SourcePrediction{}
	}
	usage := prediction.Usage

	if err := p.jobRepo.Complete(ctx, job.ID, model.JobResult{
		Predictions: sources,
		ScoredTags:  scored,
		Usage:       &usage,
	}); err != nil {
		log.Errorw("failed to store job result", "error", err)
		if failErr := p.fail(ctx, job, fmt.Errorf("store result: %w", err)); failErr != nil {
			return fmt.Errorf("complete job: %w (%v)", err, failErr)
		}
		return nil
	}
	metrics.ObserveJobFinished(string(model.JobStatusCompleted), elapsed(job))

	event := &pubsub.JobEvent{
		JobID:   job.ID,
		TeamID:  job.TeamID,
		AssetID: job.AssetID,
		Status:  string(model.JobStatusCompleted),
	}
	if len(scored) > 0 {
		event.TopScore = scored[0].Score
	}
	p.publish(ctx, event)
	log.Infow("tagging job completed", "candidates", len(scored), "total_tokens", usage.TotalTokens)

	if job.TaskType == model.TaskTypeTest {
		return nil
	}

	if err := p.applyResults(ctx, job, asset, scored); err != nil {
		var applyErr *ApplyError
		if errors.As(err, &applyErr) {
			metrics.IncreaseApplyFailures(applyErr.Stage)
		}
		log.Errorw("failed to apply tagging results", "error", err)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, job *model.TaggingJob, cause error) error {
	if err := p.jobRepo.Fail(ctx, job.ID, cause.Error()); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	metrics.ObserveJobFinished(string(model.JobStatusFailed), elapsed(job))
	p.publish(ctx, &pubsub.JobEvent{
		JobID:   job.ID,
		TeamID:  job.TeamID,
		AssetID: job.AssetID,
		Status:  string(model.JobStatusFailed),
		Error:   cause.Error(),
	})
	return nil
}

func (p *Processor) publish(ctx context.Context, event *pubsub.JobEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishJobEvent(ctx, event); err != nil {
		p.log.Warnw("failed to publish job event", "job_id", event.JobID, "error", err)
	}
}

// applyResults 写审核记录，直接模式下再调用外部接口打标
func (p *Processor) applyResults(ctx context.Context, job *model.TaggingJob, asset *model.Asset, scored []model.ScoredTag) error {
	// 模式只读一次，整个任务内保持一致
	mode, err := p.settingRepo.GetTaggingMode(ctx, job.TeamID)
	if err != nil {
		return &ApplyError{Stage: StageSettings, Err: err}
	}

	status := model.ReviewStatusPending
	if mode == model.TaggingModeDirect {
		status = model.ReviewStatusApproved
	}

	items, malformed := buildReviewItems(job, scored, status)
	if malformed > 0 {
		metrics.IncreaseMalformedCandidates(malformed)
		p.log.Debugw("dropped malformed candidates", "job_id", job.ID, "count", malformed)
	}
	if len(items) == 0 {
		p.log.Warnw("no review items produced", "job_id", job.ID, "candidates", len(scored))
	} else {
		if err := p.reviewRepo.CreateBatch(ctx, items); err != nil {
			return &ApplyError{Stage: StageReview, Err: err}
		}
		metrics.IncreaseReviewItems(string(status), len(items))
	}

	if mode != model.TaggingModeDirect || len(items) == 0 {
		return nil
	}
	return p.applyDirect(ctx, job, asset, items)
}

func (p *Processor) applyDirect(ctx context.Context, job *model.TaggingJob, asset *model.Asset, items []*model.ReviewItem) error {
	leafIDs := make([]string, 0, len(items))
	for _, item := range items {
		leafIDs = append(leafIDs, item.LeafTagID)
	}

	resolved, err := p.tagRepo.ResolveExternalIDs(ctx, job.TeamID, leafIDs)
	if err != nil {
		return &ApplyError{Stage: StageResolve, Err: err}
	}

	externalIDs := make([]string, 0, len(leafIDs))
	for _, id := range leafIDs {
		if ext, ok := resolved[id]; ok {
			externalIDs = append(externalIDs, ext)
		}
	}
	if len(externalIDs) == 0 {
		p.log.Infow("no resolvable tags to apply", "job_id", job.ID, "candidates", len(leafIDs))
		return nil
	}
	if asset.ExternalID == "" {
		return &ApplyError{Stage: StageApply, Err: errors.New("asset has no external id")}
	}

	if err := p.tagAPI.ApplyTags(ctx, asset.ExternalID, externalIDs, true); err != nil {
		return &ApplyError{Stage: StageApply, Err: err}
	}
	metrics.IncreaseAppliedTags(len(externalIDs))

	remote, err := p.tagAPI.FetchAssetsByIds(ctx, []string{asset.ExternalID})
	if err != nil {
		return &ApplyError{Stage: StageRefresh, Err: err}
	}
	for _, ra := range remote {
		if ra.ID != asset.ExternalID {
			continue
		}
		if err := p.assetRepo.UpdateTags(ctx, asset.ID, model.TagRefs(ra.Tags)); err != nil {
			return &ApplyError{Stage: StageRefresh, Err: err}
		}
		p.log.Infow("tags applied", "job_id", job.ID, "applied", len(externalIDs), "asset_tags", len(ra.Tags))
		return nil
	}
	return &ApplyError{Stage: StageRefresh, Err: fmt.Errorf("asset %s missing from refresh response", asset.ExternalID)}
}

// buildReviewItems 缺少 leafTagId 或 tagPath 的候选直接丢弃
func buildReviewItems(job *model.TaggingJob, scored []model.ScoredTag, status model.ReviewStatus) ([]*model.ReviewItem, int) {
	items := make([]*model.ReviewItem, 0, len(scored))
	malformed := 0
	for _, tag := range scored {
		if tag.LeafTagID == "" || len(tag.TagPath) == 0 {
			malformed++
			continue
		}
		items = append(items, &model.ReviewItem{
			JobID:     job.ID,
			AssetID:   job.AssetID,
			TeamID:    job.TeamID,
			LeafTagID: tag.LeafTagID,
			TagPath:   model.StringArray(tag.TagPath),
			Score:     tag.Score,
			Status:    status,
		})
	}
	return items, malformed
}

func elapsed(job *model.TaggingJob) float64 {
	if job.StartsAt == nil {
		return 0
	}
	return time.Since(*job.StartsAt).Seconds()
}
