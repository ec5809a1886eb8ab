package model

import "time"

// Asset 资产在本地的镜像，ExternalID 为外部资产系统中的 ID
type Asset struct {
	ID                 string    `gorm:"primaryKey;size:64" json:"id"`
	TeamID             string    `gorm:"size:64;not null;index" json:"team_id"`
	ExternalID         string    `gorm:"size:128;index" json:"external_id"`
	Name               string    `gorm:"size:255" json:"name"`
	Description        string    `gorm:"type:text" json:"description"`
	MaterializedPath   string    `gorm:"size:1024" json:"materialized_path"` // 文件夹路径
	ContentDescription string    `gorm:"type:text" json:"content_description"`
	Tags               TagRefs   `gorm:"type:json" json:"tags"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}
