package model

import "time"

type TaggingMode string

const (
	TaggingModeDirect TaggingMode = "direct"
	TaggingModeReview TaggingMode = "review"
)

// TeamSetting 团队级打标配置
type TeamSetting struct {
	TeamID              string          `gorm:"primaryKey;size:64" json:"team_id"`
	TaggingMode         TaggingMode     `gorm:"size:20;not null;default:review" json:"tagging_mode"`
	MatchingSources     MatchingSources `gorm:"type:json" json:"matching_sources"`
	RecognitionAccuracy string          `gorm:"size:20;not null;default:balanced" json:"recognition_accuracy"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (TeamSetting) TableName() string {
	return "team_settings"
}

// DefaultOptions 该团队的默认任务选项
func (s *TeamSetting) DefaultOptions() JobOptions {
	opts := JobOptions{
		MatchingSources:     s.MatchingSources,
		RecognitionAccuracy: s.RecognitionAccuracy,
	}
	if !opts.MatchingSources.Any() {
		opts.MatchingSources = AllMatchingSources()
	}
	if opts.RecognitionAccuracy == "" {
		opts.RecognitionAccuracy = AccuracyBalanced
	}
	return opts
}
