// Package scoring 多来源置信度融合
package scoring

import (
	"math"
	"sort"

	"github.com/qs3c/autotag_server/config"
	"github.com/qs3c/autotag_server/internal/model"
)

// Weights 融合常量。数值为经验值，未经严格验证，调整前需重新评估
type Weights struct {
	DampingFactor float64
	BySource      map[model.Source]float64
}

// DefaultWeights 默认融合常量
func DefaultWeights() Weights {
	return Weights{
		DampingFactor: 0.8,
		BySource: map[model.Source]float64{
			model.SourceBasicInfo:        0.70,
			model.SourceMaterializedPath: 0.75,
			model.SourceContentAnalysis:  0.85,
			model.SourceTagKeywords:      0.95,
		},
	}
}

// WeightsFromConfig 读取配置，未配置（<=0）的项使用默认值
func WeightsFromConfig(cfg config.ScoringConfig) Weights {
	w := DefaultWeights()
	if cfg.DampingFactor > 0 {
		w.DampingFactor = cfg.DampingFactor
	}
	override := map[model.Source]float64{
		model.SourceBasicInfo:        cfg.BasicInfoWeight,
		model.SourceMaterializedPath: cfg.MaterializedPathWeight,
		model.SourceContentAnalysis:  cfg.ContentAnalysisWeight,
		model.SourceTagKeywords:      cfg.TagKeywordsWeight,
	}
	for source, v := range override {
		if v > 0 {
			w.BySource[source] = v
		}
	}
	return w
}

// Fuse 带阻尼的 noisy-OR：每个来源的置信度先按权重取幂，
// 再按独立概率合并；结果不低于最强的单一来源
func (w Weights) Fuse(confidenceBySources map[model.Source]float64) float64 {
	if len(confidenceBySources) == 0 {
		return 0
	}

	remaining := 1.0
	maxWeighted := 0.0
	for source, confidence := range confidenceBySources {
		weight, ok := w.BySource[source]
		if !ok {
			continue
		}
		enhanced := math.Pow(clamp(confidence), weight)
		if enhanced > maxWeighted {
			maxWeighted = enhanced
		}
		remaining *= 1 - enhanced*w.DampingFactor
	}

	return math.Max(1-remaining, maxWeighted)
}

// Fuse 使用默认常量融合
func Fuse(confidenceBySources map[model.Source]float64) float64 {
	return DefaultWeights().Fuse(confidenceBySources)
}

// ToScore 转换为 0-100 的整数分
func ToScore(fused float64) int {
	return int(math.Round(fused * 100))
}

// ScoreTags 按 leafTagId 分组并融合，结果按分数降序、leafTagId 升序排列
func (w Weights) ScoreTags(predictions []model.SourcePrediction) []model.ScoredTag {
	index := make(map[string]int)
	var scored []model.ScoredTag

	for _, prediction := range predictions {
		for _, guess := range prediction.Tags {
			i, ok := index[guess.LeafTagID]
			if !ok {
				i = len(scored)
				index[guess.LeafTagID] = i
				scored = append(scored, model.ScoredTag{
					LeafTagID:           guess.LeafTagID,
					TagPath:             guess.TagPath,
					ConfidenceBySources: make(map[model.Source]float64),
				})
			}
			// 同一来源重复出现时后者覆盖
			scored[i].ConfidenceBySources[prediction.Source] = guess.Confidence
			if len(scored[i].TagPath) == 0 {
				scored[i].TagPath = guess.TagPath
			}
		}
	}

	for i := range scored {
		scored[i].Score = ToScore(w.Fuse(scored[i].ConfidenceBySources))
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].LeafTagID < scored[b].LeafTagID
	})

	return scored
}

// ScoreTags 使用默认常量评分
func ScoreTags(predictions []model.SourcePrediction) []model.ScoredTag {
	return DefaultWeights().ScoreTags(predictions)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
