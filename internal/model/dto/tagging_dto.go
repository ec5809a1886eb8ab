package dto

import "github.com/qs3c/autotag_server/internal/model"

// MatchingSourcesRequest 来源开关，未传的字段按团队默认值处理
type MatchingSourcesRequest struct {
	BasicInfo        *bool `json:"basic_info,omitempty"`
	MaterializedPath *bool `json:"materialized_path,omitempty"`
	ContentAnalysis  *bool `json:"content_analysis,omitempty"`
	TagKeywords      *bool `json:"tag_keywords,omitempty"`
}

// JobOptionsRequest 任务选项
type JobOptionsRequest struct {
	MatchingSources     *MatchingSourcesRequest `json:"matching_sources,omitempty"`
	RecognitionAccuracy string                  `json:"recognition_accuracy,omitempty" binding:"omitempty,oneof=precise balanced broad"`
}

// EnqueueRequest 创建打标任务请求
type EnqueueRequest struct {
	AssetID  string             `json:"asset_id" binding:"required,max=64"`
	TaskType string             `json:"task_type,omitempty" binding:"omitempty,oneof=default test manual scheduled"`
	Options  *JobOptionsRequest `json:"options,omitempty"`
}

// EnqueueResponse 创建打标任务响应
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// JobStatusResponse 任务状态响应
type JobStatusResponse struct {
	JobID           string           `json:"job_id"`
	AssetID         string           `json:"asset_id"`
	Status          string           `json:"status"`
	TaskType        string           `json:"task_type"`
	Result          *model.JobResult `json:"result"`
	StartsAt        string           `json:"starts_at,omitempty"`
	EndsAt          string           `json:"ends_at,omitempty"`
	DurationSeconds float64          `json:"duration_seconds,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// ReviewItemResponse 审核记录
type ReviewItemResponse struct {
	ID        uint64   `json:"id"`
	JobID     string   `json:"job_id"`
	LeafTagID string   `json:"leaf_tag_id"`
	TagPath   []string `json:"tag_path"`
	Score     int      `json:"score"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
}

// DispatchResponse 调度触发响应
type DispatchResponse struct {
	Claimed          int `json:"claimed"`
	SkippedDueToRace int `json:"skipped_due_to_race"`
}
