package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get 团队设置，不存在时返回默认设置（审核模式，全部来源开启）
func (r *SettingRepository) Get(ctx context.Context, teamID string) (*model.TeamSetting, error) {
	var setting model.TeamSetting
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.TeamSetting{
			TeamID:              teamID,
			TaggingMode:         model.TaggingModeReview,
			MatchingSources:     model.AllMatchingSources(),
			RecognitionAccuracy: model.AccuracyBalanced,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetTaggingMode 读取打标模式，未知值按审核模式处理
func (r *SettingRepository) GetTaggingMode(ctx context.Context, teamID string) (model.TaggingMode, error) {
	setting, err := r.Get(ctx, teamID)
	if err != nil {
		return "", err
	}
	if setting.TaggingMode == model.TaggingModeDirect {
		return model.TaggingModeDirect, nil
	}
	return model.TaggingModeReview, nil
}

// GetDefaults 团队默认任务选项
func (r *SettingRepository) GetDefaults(ctx context.Context, teamID string) (model.JobOptions, error) {
	setting, err := r.Get(ctx, teamID)
	if err != nil {
		return model.JobOptions{}, err
	}
	return setting.DefaultOptions(), nil
}

// Save 写入或更新团队设置
func (r *SettingRepository) Save(ctx context.Context, setting *model.TeamSetting) error {
	return r.db.WithContext(ctx).Save(setting).Error
}
