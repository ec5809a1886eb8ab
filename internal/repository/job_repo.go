package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

// DefaultClaimBatchSize 单次调度最多领取的任务数
const DefaultClaimBatchSize = 30

// ClaimResult 一次批量领取的结果
type ClaimResult struct {
	Claimed []*model.TaggingJob
	// Skipped 查询到但已被其他调度者抢先领取的任务数
	Skipped int
}

type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Enqueue 创建待处理任务，不做去重
func (r *JobRepository) Enqueue(ctx context.Context, teamID, assetID string, options model.JobOptions, taskType model.TaskType) (*model.TaggingJob, error) {
	if taskType == "" {
		taskType = model.TaskTypeDefault
	}
	now := r.now()
	job := &model.TaggingJob{
		TeamID:   teamID,
		AssetID:  assetID,
		Status:   model.JobStatusPending,
		TaskType: taskType,
		StartsAt: &now,
		Options:  options,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.TaggingJob, error) {
	var job model.TaggingJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetPendingJobs 按 starts_at 升序获取待处理任务，starts_at 为空的排在最前
func (r *JobRepository) GetPendingJobs(ctx context.Context, limit int) ([]*model.TaggingJob, error) {
	var jobs []*model.TaggingJob
	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("starts_at IS NOT NULL, starts_at ASC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// TryClaim 以 id + 当前状态为条件更新，只有影响一行才算领取成功
func (r *JobRepository) TryClaim(ctx context.Context, id string) (bool, error) {
	return r.tryClaim(ctx, id, r.now())
}

func (r *JobRepository) tryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TaggingJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":    model.JobStatusProcessing,
			"starts_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimBatch 领取一批待处理任务，被并发抢占的任务跳过并计数，本批不重试
func (r *JobRepository) ClaimBatch(ctx context.Context, limit int) (*ClaimResult, error) {
	if limit <= 0 {
		limit = DefaultClaimBatchSize
	}

	pending, err := r.GetPendingJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{}
	for _, job := range pending {
		now := r.now()
		ok, err := r.tryClaim(ctx, job.ID, now)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Skipped++
			continue
		}
		job.Status = model.JobStatusProcessing
		job.StartsAt = &now
		result.Claimed = append(result.Claimed, job)
	}
	return result, nil
}

// Complete 写入完成状态和结果，不校验当前状态
func (r *JobRepository) Complete(ctx context.Context, id string, result model.JobResult) error {
	return r.finish(ctx, id, model.JobStatusCompleted, result)
}

// Fail 写入失败状态和错误信息，不校验当前状态
func (r *JobRepository) Fail(ctx context.Context, id string, errMsg string) error {
	return r.finish(ctx, id, model.JobStatusFailed, model.JobResult{Error: errMsg})
}

func (r *JobRepository) finish(ctx context.Context, id string, status model.JobStatus, result model.JobResult) error {
	return r.db.WithContext(ctx).Model(&model.TaggingJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"ends_at": r.now(),
			"result":  result,
		}).Error
}

// Reset 将失败任务重置为待处理，清空时间和结果；非失败状态返回 false
func (r *JobRepository) Reset(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TaggingJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusFailed).
		Updates(map[string]interface{}{
			"status":    model.JobStatusPending,
			"starts_at": nil,
			"ends_at":   nil,
			"result":    nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountByStatus 各状态任务数
func (r *JobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error) {
	var rows []struct {
		Status model.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.TaggingJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// PruneTerminal 删除 before 之前结束的终态任务，审核记录不受影响。dryRun 时只统计
func (r *JobRepository) PruneTerminal(ctx context.Context, before time.Time, dryRun bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.TaggingJob{}).
		Where("status IN ? AND ends_at < ?", []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}, before)

	if dryRun {
		var count int64
		err := query.Count(&count).Error
		return count, err
	}

	result := query.Delete(&model.TaggingJob{})
	return result.RowsAffected, result.Error
}
