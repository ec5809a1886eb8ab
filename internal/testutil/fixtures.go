package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/model"
)

var seq int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&seq, 1))
}

// TestAsset 创建测试资产
func TestAsset(t *testing.T, db *gorm.DB, teamID string, opts ...func(*model.Asset)) *model.Asset {
	t.Helper()

	id := nextID("asset")
	asset := &model.Asset{
		ID:                 id,
		TeamID:             teamID,
		ExternalID:         "ext-" + id,
		Name:               "beach-sunset.jpg",
		Description:        "Sunset over the beach",
		MaterializedPath:   "/Marketing/Summer/",
		ContentDescription: "A red sun setting over the sea",
		Tags:               model.TagRefs{},
	}

	for _, opt := range opts {
		opt(asset)
	}

	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("Failed to create test asset: %v", err)
	}

	return asset
}

// WithAssetName 设置资产名称
func WithAssetName(name string) func(*model.Asset) {
	return func(a *model.Asset) {
		a.Name = name
	}
}

// WithAssetTags 设置资产缓存的标签
func WithAssetTags(tags ...model.TagRef) func(*model.Asset) {
	return func(a *model.Asset) {
		a.Tags = tags
	}
}

// TestTag 创建测试标签，parentID 为空表示根节点
func TestTag(t *testing.T, db *gorm.DB, teamID, name string, parentID *string, opts ...func(*model.Tag)) *model.Tag {
	t.Helper()

	id := nextID("tag")
	tag := &model.Tag{
		ID:             id,
		TeamID:         teamID,
		ParentID:       parentID,
		Name:           name,
		ExternalID:     "ext-" + id,
		Keywords:       model.StringArray{},
		TaggingEnabled: true,
	}

	for _, opt := range opts {
		opt(tag)
	}

	if err := db.Create(tag).Error; err != nil {
		t.Fatalf("Failed to create test tag: %v", err)
	}
	// gorm 对 bool 零值使用列默认值，这里显式回写
	if !tag.TaggingEnabled {
		if err := db.Model(tag).Update("tagging_enabled", false).Error; err != nil {
			t.Fatalf("Failed to disable test tag: %v", err)
		}
	}

	return tag
}

// WithTaggingDisabled 关闭该标签的自动打标
func WithTaggingDisabled() func(*model.Tag) {
	return func(tg *model.Tag) {
		tg.TaggingEnabled = false
	}
}

// WithExternalID 设置外部标签 ID，空字符串表示未同步
func WithExternalID(externalID string) func(*model.Tag) {
	return func(tg *model.Tag) {
		tg.ExternalID = externalID
	}
}

// WithKeywords 设置标签关键词
func WithKeywords(keywords ...string) func(*model.Tag) {
	return func(tg *model.Tag) {
		tg.Keywords = keywords
	}
}

// WithSort 设置排序
func WithSort(sort int) func(*model.Tag) {
	return func(tg *model.Tag) {
		tg.Sort = sort
	}
}

// TestTeamSetting 创建团队设置
func TestTeamSetting(t *testing.T, db *gorm.DB, teamID string, mode model.TaggingMode, opts ...func(*model.TeamSetting)) *model.TeamSetting {
	t.Helper()

	setting := &model.TeamSetting{
		TeamID:              teamID,
		TaggingMode:         mode,
		MatchingSources:     model.AllMatchingSources(),
		RecognitionAccuracy: model.AccuracyBalanced,
	}

	for _, opt := range opts {
		opt(setting)
	}

	if err := db.Create(setting).Error; err != nil {
		t.Fatalf("Failed to create test team setting: %v", err)
	}

	return setting
}

// WithMatchingSources 设置默认来源开关
func WithMatchingSources(sources model.MatchingSources) func(*model.TeamSetting) {
	return func(s *model.TeamSetting) {
		s.MatchingSources = sources
	}
}

// WithAccuracy 设置默认识别精度
func WithAccuracy(accuracy string) func(*model.TeamSetting) {
	return func(s *model.TeamSetting) {
		s.RecognitionAccuracy = accuracy
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, teamID, assetID string, status model.JobStatus, opts ...func(*model.TaggingJob)) *model.TaggingJob {
	t.Helper()

	now := time.Now()
	job := &model.TaggingJob{
		TeamID:   teamID,
		AssetID:  assetID,
		Status:   status,
		TaskType: model.TaskTypeDefault,
		StartsAt: &now,
		Options: model.JobOptions{
			MatchingSources:     model.AllMatchingSources(),
			RecognitionAccuracy: model.AccuracyBalanced,
		},
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithTaskType 设置任务类型
func WithTaskType(taskType model.TaskType) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.TaskType = taskType
	}
}

// WithStartsAt 设置开始时间，用于排序相关用例
func WithStartsAt(startsAt time.Time) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.StartsAt = &startsAt
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(createdAt time.Time) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.CreatedAt = createdAt
	}
}

// WithOptions 设置任务选项
func WithOptions(options model.JobOptions) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.Options = options
	}
}

// WithResult 设置任务结果
func WithResult(result model.JobResult) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.Result = result
	}
}

// WithEndsAt 设置结束时间
func WithEndsAt(endsAt time.Time) func(*model.TaggingJob) {
	return func(j *model.TaggingJob) {
		j.EndsAt = &endsAt
	}
}

// TestReviewItem 创建审核记录
func TestReviewItem(t *testing.T, db *gorm.DB, job *model.TaggingJob, leafTagID string, score int, status model.ReviewStatus) *model.ReviewItem {
	t.Helper()

	item := &model.ReviewItem{
		JobID:     job.ID,
		AssetID:   job.AssetID,
		TeamID:    job.TeamID,
		LeafTagID: leafTagID,
		TagPath:   model.StringArray{leafTagID},
		Score:     score,
		Status:    status,
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to create test review item: %v", err)
	}

	return item
}
