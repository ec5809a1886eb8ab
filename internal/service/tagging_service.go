package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/model/dto"
	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
	"github.com/qs3c/autotag_server/internal/pkg/queue"
	"github.com/qs3c/autotag_server/internal/repository"
)

var (
	ErrJobNotFound      = errors.New("打标任务不存在")
	ErrJobNotRetryable  = errors.New("只有失败的任务可以重试")
	ErrAssetNotFound    = errors.New("资产不存在")
	ErrInvalidTaskType  = errors.New("无效的任务类型")
	ErrNoSourceSelected = errors.New("至少需要开启一个匹配来源")
)

const (
	DefaultWaitTimeout = 30 * time.Second
	MaxWaitTimeout     = 60 * time.Second
	waitPollInterval   = time.Second

	DefaultPendingLimit = 50
	MaxPendingLimit     = 200
)

type TaggingService struct {
	jobRepo     *repository.JobRepository
	assetRepo   *repository.AssetRepository
	settingRepo *repository.SettingRepository
	reviewRepo  *repository.ReviewRepository
	wakeQueue   *queue.Queue
	subscriber  *pubsub.Subscriber
	log         *zap.SugaredLogger
}

// NewTaggingService wakeQueue 和 subscriber 可以为 nil
func NewTaggingService(
	jobRepo *repository.JobRepository,
	assetRepo *repository.AssetRepository,
	settingRepo *repository.SettingRepository,
	reviewRepo *repository.ReviewRepository,
	wakeQueue *queue.Queue,
	subscriber *pubsub.Subscriber,
) *TaggingService {
	return &TaggingService{
		jobRepo:     jobRepo,
		assetRepo:   assetRepo,
		settingRepo: settingRepo,
		reviewRepo:  reviewRepo,
		wakeQueue:   wakeQueue,
		subscriber:  subscriber,
		log:         zap.S().Named("tagging"),
	}
}

// Enqueue 创建打标任务，未指定的选项取团队当前设置
func (s *TaggingService) Enqueue(ctx context.Context, teamID string, req *dto.EnqueueRequest) (*dto.EnqueueResponse, error) {
	taskType := model.TaskType(req.TaskType)
	if taskType == "" {
		taskType = model.TaskTypeDefault
	}
	if !taskType.Valid() {
		return nil, ErrInvalidTaskType
	}

	if _, err := s.assetRepo.GetByTeam(ctx, teamID, req.AssetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}

	defaults, err := s.settingRepo.GetDefaults(ctx, teamID)
	if err != nil {
		return nil, err
	}
	options := mergeOptions(defaults, req.Options)
	if !options.MatchingSources.Any() {
		return nil, ErrNoSourceSelected
	}

	job, err := s.jobRepo.Enqueue(ctx, teamID, req.AssetID, options, taskType)
	if err != nil {
		return nil, err
	}

	s.wake(ctx, job, "enqueue")
	s.log.Infow("tagging job enqueued", "job_id", job.ID, "team_id", teamID, "asset_id", req.AssetID, "task_type", taskType)

	return &dto.EnqueueResponse{JobID: job.ID}, nil
}

// GetJobStatus 查询任务状态，其他团队的任务视为不存在
func (s *TaggingService) GetJobStatus(ctx context.Context, teamID, jobID string) (*dto.JobStatusResponse, error) {
	job, err := s.getTeamJob(ctx, teamID, jobID)
	if err != nil {
		return nil, err
	}
	return toJobStatus(job), nil
}

// WaitJob 等待任务进入终态，超时后返回当前状态
func (s *TaggingService) WaitJob(ctx context.Context, teamID, jobID string, timeout time.Duration) (*dto.JobStatusResponse, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if timeout > MaxWaitTimeout {
		timeout = MaxWaitTimeout
	}

	job, err := s.getTeamJob(ctx, teamID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return toJobStatus(job), nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var events <-chan *pubsub.JobEvent
	if s.subscriber != nil {
		sub, err := s.subscriber.Listen(ctx)
		if err != nil {
			s.log.Warnw("job event subscription failed, falling back to polling", "job_id", jobID, "error", err)
		} else {
			defer sub.Close()
			events = sub.C
		}
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	last := job
	for {
		// 订阅生效后再查一次，避免错过订阅前发布的事件
		job, err := s.jobRepo.GetByID(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return toJobStatus(last), nil
			}
			return nil, err
		}
		if job.Status.Terminal() {
			return toJobStatus(job), nil
		}
		last = job

		if !waitForChange(ctx, ticker.C, &events, jobID) {
			return toJobStatus(last), nil
		}
	}
}

// waitForChange 等到本任务的事件或下一次轮询，ctx 结束时返回 false
func waitForChange(ctx context.Context, tick <-chan time.Time, events *<-chan *pubsub.JobEvent, jobID string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			return true
		case event, ok := <-*events:
			if !ok {
				*events = nil
				continue
			}
			if event.JobID == jobID {
				return true
			}
		}
	}
}

// Retry 将失败的任务重置为待处理
func (s *TaggingService) Retry(ctx context.Context, teamID, jobID string) error {
	job, err := s.getTeamJob(ctx, teamID, jobID)
	if err != nil {
		return err
	}

	ok, err := s.jobRepo.Reset(ctx, job.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotRetryable
	}

	s.wake(ctx, job, "retry")
	s.log.Infow("tagging job reset", "job_id", job.ID, "team_id", teamID)
	return nil
}

// ListReviews 列出任务产生的审核记录
func (s *TaggingService) ListReviews(ctx context.Context, teamID, jobID string) ([]*dto.ReviewItemResponse, error) {
	if _, err := s.getTeamJob(ctx, teamID, jobID); err != nil {
		return nil, err
	}

	items, err := s.reviewRepo.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return toReviewItems(items), nil
}

// ListPendingReviews 团队待审核记录，按创建时间升序
func (s *TaggingService) ListPendingReviews(ctx context.Context, teamID string, limit int) ([]*dto.ReviewItemResponse, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	if limit > MaxPendingLimit {
		limit = MaxPendingLimit
	}

	items, err := s.reviewRepo.ListPending(ctx, teamID, limit)
	if err != nil {
		return nil, err
	}
	return toReviewItems(items), nil
}

func toReviewItems(items []*model.ReviewItem) []*dto.ReviewItemResponse {
	resp := make([]*dto.ReviewItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, &dto.ReviewItemResponse{
			ID:        item.ID,
			JobID:     item.JobID,
			LeafTagID: item.LeafTagID,
			TagPath:   item.TagPath,
			Score:     item.Score,
			Status:    string(item.Status),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

func (s *TaggingService) getTeamJob(ctx context.Context, teamID, jobID string) (*model.TaggingJob, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.TeamID != teamID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// wake 通知调度循环提前 tick，失败不影响任务本身
func (s *TaggingService) wake(ctx context.Context, job *model.TaggingJob, reason string) {
	if s.wakeQueue == nil {
		return
	}
	msg := &queue.WakeMessage{JobID: job.ID, TeamID: job.TeamID, Reason: reason}
	if err := s.wakeQueue.Push(ctx, msg); err != nil {
		s.log.Warnw("wake message push failed", "job_id", job.ID, "error", err)
	}
}

func mergeOptions(defaults model.JobOptions, req *dto.JobOptionsRequest) model.JobOptions {
	opts := defaults
	if req == nil {
		return opts
	}
	if ms := req.MatchingSources; ms != nil {
		if ms.BasicInfo != nil {
			opts.MatchingSources.BasicInfo = *ms.BasicInfo
		}
		if ms.MaterializedPath != nil {
			opts.MatchingSources.MaterializedPath = *ms.MaterializedPath
		}
		if ms.ContentAnalysis != nil {
			opts.MatchingSources.ContentAnalysis = *ms.ContentAnalysis
		}
		if ms.TagKeywords != nil {
			opts.MatchingSources.TagKeywords = *ms.TagKeywords
		}
	}
	if req.RecognitionAccuracy != "" {
		opts.RecognitionAccuracy = req.RecognitionAccuracy
	}
	return opts
}

func toJobStatus(job *model.TaggingJob) *dto.JobStatusResponse {
	resp := &dto.JobStatusResponse{
		JobID:     job.ID,
		AssetID:   job.AssetID,
		Status:    string(job.Status),
		TaskType:  string(job.TaskType),
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if !job.Result.IsEmpty() {
		result := job.Result
		resp.Result = &result
	}
	if job.StartsAt != nil {
		resp.StartsAt = job.StartsAt.Format(time.RFC3339)
	}
	if job.EndsAt != nil {
		resp.EndsAt = job.EndsAt.Format(time.RFC3339)
		resp.DurationSeconds = job.Duration().Seconds()
	}
	return resp
}
