package model

// Source 证据来源
type Source string

const (
	SourceBasicInfo        Source = "basicInfo"
	SourceMaterializedPath Source = "materializedPath"
	SourceContentAnalysis  Source = "contentAnalysis"
	SourceTagKeywords      Source = "tagKeywords"
)

// AllSources 按固定顺序列出全部来源
var AllSources = []Source{
	SourceBasicInfo,
	SourceMaterializedPath,
	SourceContentAnalysis,
	SourceTagKeywords,
}

// Valid 是否为已知来源
func (s Source) Valid() bool {
	switch s {
	case SourceBasicInfo, SourceMaterializedPath, SourceContentAnalysis, SourceTagKeywords:
		return true
	}
	return false
}

// TagGuess 单个来源对某个叶子标签的猜测
type TagGuess struct {
	LeafTagID  string   `json:"leaf_tag_id"`
	TagPath    []string `json:"tag_path"` // 1-3 段，叶子在最后
	Confidence float64  `json:"confidence"`
}

// SourcePrediction 单个来源对一个资产的全部猜测
type SourcePrediction struct {
	Source Source     `json:"source"`
	Tags   []TagGuess `json:"tags"`
}

// ScoredTag 融合后的候选标签
type ScoredTag struct {
	LeafTagID           string             `json:"leaf_tag_id"`
	TagPath             []string           `json:"tag_path"`
	ConfidenceBySources map[Source]float64 `json:"confidence_by_sources"`
	Score               int                `json:"score"`
}

// Usage 模型调用的用量信息
type Usage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}
