package model

import "time"

// MaxTagDepth 标签体系最多三级
const MaxTagDepth = 3

type Tag struct {
	ID             string      `gorm:"primaryKey;size:64" json:"id"`
	TeamID         string      `gorm:"size:64;not null;index" json:"team_id"`
	ParentID       *string     `gorm:"size:64;index" json:"parent_id,omitempty"`
	Name           string      `gorm:"size:255;not null" json:"name"`
	ExternalID     string      `gorm:"size:128" json:"external_id"`
	Keywords       StringArray `gorm:"type:json" json:"keywords"`
	TaggingEnabled bool        `gorm:"not null;default:true" json:"tagging_enabled"`
	Sort           int         `gorm:"not null;default:0" json:"sort"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (Tag) TableName() string {
	return "tags"
}

// TagNode 标签树节点
type TagNode struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Keywords []string   `json:"keywords,omitempty"`
	Children []*TagNode `json:"children,omitempty"`
}
