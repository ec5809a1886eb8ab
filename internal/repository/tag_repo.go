package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// ListByTeam 团队全部标签，按 sort、name 排序
func (r *TagRepository) ListByTeam(ctx context.Context, teamID string) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("sort ASC, name ASC").
		Find(&tags).Error
	return tags, err
}

// FetchTagTree 构建启用了自动打标的标签树，最多三级。
// 被关闭的节点连同其子树一起排除
func (r *TagRepository) FetchTagTree(ctx context.Context, teamID string) ([]*model.TagNode, error) {
	tags, err := r.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	children := make(map[string][]*model.Tag)
	var roots []*model.Tag
	for _, tag := range tags {
		if !tag.TaggingEnabled {
			continue
		}
		if tag.ParentID == nil || *tag.ParentID == "" {
			roots = append(roots, tag)
			continue
		}
		children[*tag.ParentID] = append(children[*tag.ParentID], tag)
	}

	var build func(tag *model.Tag, depth int) *model.TagNode
	build = func(tag *model.Tag, depth int) *model.TagNode {
		node := &model.TagNode{ID: tag.ID, Name: tag.Name, Keywords: tag.Keywords}
		if depth >= model.MaxTagDepth {
			return node
		}
		for _, child := range children[tag.ID] {
			node.Children = append(node.Children, build(child, depth+1))
		}
		return node
	}

	tree := make([]*model.TagNode, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, build(root, 1))
	}
	return tree, nil
}

// ResolveExternalIDs 将本地叶子标签 ID 映射为外部标签 ID，未同步的标签不在结果中
func (r *TagRepository) ResolveExternalIDs(ctx context.Context, teamID string, ids []string) (map[string]string, error) {
	resolved := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}

	var tags []*model.Tag
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND id IN ? AND external_id <> ''", teamID, ids).
		Find(&tags).Error
	if err != nil {
		return nil, err
	}

	for _, tag := range tags {
		resolved[tag.ID] = tag.ExternalID
	}
	return resolved, nil
}
