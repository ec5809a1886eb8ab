package model

import "time"

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// ReviewItem 待人工审核（或直接模式下已批准）的标签记录，任务删除后仍保留
type ReviewItem struct {
	ID        uint64       `gorm:"primaryKey" json:"id"`
	JobID     string       `gorm:"size:36;not null;index" json:"job_id"`
	AssetID   string       `gorm:"size:64;not null;index" json:"asset_id"`
	TeamID    string       `gorm:"size:64;not null;index" json:"team_id"`
	LeafTagID string       `gorm:"size:64;not null" json:"leaf_tag_id"`
	TagPath   StringArray  `gorm:"type:json" json:"tag_path"`
	Score     int          `gorm:"not null" json:"score"`
	Status    ReviewStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

func (ReviewItem) TableName() string {
	return "tagging_review_items"
}
