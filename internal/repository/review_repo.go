package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateBatch 批量插入，空切片直接返回
func (r *ReviewRepository) CreateBatch(ctx context.Context, items []*model.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

// ListByJobID 按分数降序列出任务产生的审核记录
func (r *ReviewRepository) ListByJobID(ctx context.Context, jobID string) ([]*model.ReviewItem, error) {
	var items []*model.ReviewItem
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("score DESC, id ASC").
		Find(&items).Error
	return items, err
}

// ListPending 团队待审核记录
func (r *ReviewRepository) ListPending(ctx context.Context, teamID string, limit int) ([]*model.ReviewItem, error) {
	var items []*model.ReviewItem
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", teamID, model.ReviewStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
