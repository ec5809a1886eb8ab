package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/cache"
	"github.com/qs3c/autotag_server/internal/repository"
)

// TaxonomyService 带缓存的标签树读取，cache 为 nil 时直接读库
type TaxonomyService struct {
	tagRepo *repository.TagRepository
	cache   *cache.Cache
	log     *zap.SugaredLogger
}

func NewTaxonomyService(tagRepo *repository.TagRepository, c *cache.Cache) *TaxonomyService {
	return &TaxonomyService{
		tagRepo: tagRepo,
		cache:   c,
		log:     zap.S().Named("taxonomy"),
	}
}

// FetchTagTree 获取团队标签树，缓存读写失败只记日志
func (s *TaxonomyService) FetchTagTree(ctx context.Context, teamID string) ([]*model.TagNode, error) {
	if s.cache != nil {
		var tree []*model.TagNode
		hit, err := s.cache.Get(ctx, teamID, &tree)
		if err != nil {
			s.log.Warnw("taxonomy cache read failed", "team_id", teamID, "error", err)
		} else if hit {
			return tree, nil
		}
	}

	tree, err := s.tagRepo.FetchTagTree(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, teamID, tree); err != nil {
			s.log.Warnw("taxonomy cache write failed", "team_id", teamID, "error", err)
		}
	}
	return tree, nil
}

// Invalidate 标签变更后清除缓存
func (s *TaxonomyService) Invalidate(ctx context.Context, teamID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, teamID)
}
