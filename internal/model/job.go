package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type TaskType string

const (
	TaskTypeDefault   TaskType = "default"
	TaskTypeTest      TaskType = "test"
	TaskTypeManual    TaskType = "manual"
	TaskTypeScheduled TaskType = "scheduled"
)

// Valid 是否为已知任务类型
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeDefault, TaskTypeTest, TaskTypeManual, TaskTypeScheduled:
		return true
	}
	return false
}

// RecognitionAccuracy 识别精度预设
const (
	AccuracyPrecise  = "precise"
	AccuracyBalanced = "balanced"
	AccuracyBroad    = "broad"
)

// MatchingSources 各证据来源开关
type MatchingSources struct {
	BasicInfo        bool `json:"basic_info"`
	MaterializedPath bool `json:"materialized_path"`
	ContentAnalysis  bool `json:"content_analysis"`
	TagKeywords      bool `json:"tag_keywords"`
}

// AllMatchingSources 全部来源开启
func AllMatchingSources() MatchingSources {
	return MatchingSources{BasicInfo: true, MaterializedPath: true, ContentAnalysis: true, TagKeywords: true}
}

// Enabled 判断来源是否开启，未知来源视为关闭
func (m MatchingSources) Enabled(source Source) bool {
	switch source {
	case SourceBasicInfo:
		return m.BasicInfo
	case SourceMaterializedPath:
		return m.MaterializedPath
	case SourceContentAnalysis:
		return m.ContentAnalysis
	case SourceTagKeywords:
		return m.TagKeywords
	}
	return false
}

// Any 是否至少开启一个来源
func (m MatchingSources) Any() bool {
	return m.BasicInfo || m.MaterializedPath || m.ContentAnalysis || m.TagKeywords
}

func (m MatchingSources) Value() (driver.Value, error) {
	return valueJSON(m)
}

func (m *MatchingSources) Scan(value interface{}) error {
	if value == nil {
		*m = MatchingSources{}
		return nil
	}
	return scanJSON(value, m)
}

// JobOptions 入队时确定的任务选项，之后不可变
type JobOptions struct {
	MatchingSources     MatchingSources `json:"matching_sources"`
	RecognitionAccuracy string          `json:"recognition_accuracy"`
}

func (o JobOptions) Value() (driver.Value, error) {
	return valueJSON(o)
}

func (o *JobOptions) Scan(value interface{}) error {
	if value == nil {
		*o = JobOptions{}
		return nil
	}
	return scanJSON(value, o)
}

// JobResult 任务结果：完成时为预测和评分，失败时为错误信息
type JobResult struct {
	Predictions []SourcePrediction `json:"predictions"`
	ScoredTags  []ScoredTag        `json:"scored_tags"`
	Usage       *Usage             `json:"usage,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// IsEmpty 结果为空时在数据库中存储为 NULL
func (r JobResult) IsEmpty() bool {
	return r.Predictions == nil && r.ScoredTags == nil && r.Usage == nil && r.Error == ""
}

// MarshalJSON 失败结果只输出错误信息，完成结果总是输出 predictions 和 scored_tags
func (r JobResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Usage *Usage `json:"usage,omitempty"`
			Error string `json:"error"`
		}{r.Usage, r.Error})
	}
	type plain JobResult
	return json.Marshal(plain(r))
}

func (r JobResult) Value() (driver.Value, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	return valueJSON(r)
}

func (r *JobResult) Scan(value interface{}) error {
	*r = JobResult{}
	if value == nil {
		return nil
	}
	return scanJSON(value, r)
}

type TaggingJob struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	TeamID    string     `gorm:"size:64;not null;index" json:"team_id"`
	AssetID   string     `gorm:"size:64;not null;index" json:"asset_id"`
	Status    JobStatus  `gorm:"size:20;not null;default:pending;index:idx_tagging_jobs_status_starts,priority:1" json:"status"`
	TaskType  TaskType   `gorm:"size:20;not null;default:default" json:"task_type"`
	StartsAt  *time.Time `gorm:"index:idx_tagging_jobs_status_starts,priority:2" json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Options   JobOptions `gorm:"type:json" json:"options"`
	Result    JobResult  `gorm:"type:json" json:"result"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (TaggingJob) TableName() string {
	return "tagging_jobs"
}

func (j *TaggingJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// Duration 处理耗时，未结束时返回 0
func (j *TaggingJob) Duration() time.Duration {
	if j.StartsAt == nil || j.EndsAt == nil {
		return 0
	}
	return j.EndsAt.Sub(*j.StartsAt)
}
