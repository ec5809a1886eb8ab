package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetByTeam 按团队查询资产，不属于该团队时返回 ErrRecordNotFound
func (r *AssetRepository) GetByTeam(ctx context.Context, teamID, id string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).Where("id = ? AND team_id = ?", id, teamID).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// UpdateTags 覆盖本地缓存的标签列表
func (r *AssetRepository) UpdateTags(ctx context.Context, id string, tags model.TagRefs) error {
	if tags == nil {
		tags = model.TagRefs{}
	}
	return r.db.WithContext(ctx).Model(&model.Asset{}).Where("id = ?", id).Update("tags", tags).Error
}
