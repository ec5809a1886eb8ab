// Package predictor 调用大模型，为单个资产生成按来源划分的标签猜测
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/llm"
)

// LLM 结构化输出的大模型客户端
type LLM interface {
	GenerateStructured(ctx context.Context, systemPrompt string, messages []llm.Message, schema llm.Schema) (*llm.Result, error)
}

// TaxonomyProvider 提供团队的标签树
type TaxonomyProvider interface {
	FetchTagTree(ctx context.Context, teamID string) ([]*model.TagNode, error)
}

// PredictInput 一次预测的输入
type PredictInput struct {
	Asset   *model.Asset
	TeamID  string
	Options model.JobOptions
}

// Prediction 按来源划分的预测结果
type Prediction struct {
	Sources []model.SourcePrediction
	Usage   model.Usage
}

// PredictionError 模型调用失败或输出不可用，任务会因此失败
type PredictionError struct {
	Message string
	Err     error
}

func (e *PredictionError) Error() string {
	if e.Err == nil {
		return "prediction failed: " + e.Message
	}
	return fmt.Sprintf("prediction failed: %s: %v", e.Message, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

type Predictor struct {
	llm      LLM
	taxonomy TaxonomyProvider
	log      *zap.SugaredLogger
}

func New(client LLM, taxonomy TaxonomyProvider) *Predictor {
	return &Predictor{
		llm:      client,
		taxonomy: taxonomy,
		log:      zap.S().Named("predictor"),
	}
}

// rawOutput 模型返回的原始结构，来源和置信度都未经校验
type rawOutput struct {
	Predictions []struct {
		Source string           `json:"source"`
		Tags   []model.TagGuess `json:"tags"`
	} `json:"predictions"`
}

// Predict 每次调用都会请求模型，结果不做跨调用缓存
func (p *Predictor) Predict(ctx context.Context, in PredictInput) (*Prediction, error) {
	if in.Asset == nil {
		return nil, &PredictionError{Message: "asset is required"}
	}

	sources := enabledSources(in.Options.MatchingSources)
	if len(sources) == 0 {
		p.log.Infow("all matching sources disabled, skipping model call", "asset_id", in.Asset.ID)
		return &Prediction{Sources: []model.SourcePrediction{}}, nil
	}

	tree, err := p.taxonomy.FetchTagTree(ctx, in.TeamID)
	if err != nil {
		return nil, fmt.Errorf("fetch tag tree: %w", err)
	}

	messages := []llm.Message{
		{Role: "user", Content: serializeTaxonomy(tree)},
		{Role: "user", Content: assetContext(in.Asset)},
	}
	result, err := p.llm.GenerateStructured(ctx, systemPrompt(sources, in.Options.RecognitionAccuracy), messages, predictionSchema())
	if err != nil {
		return nil, &PredictionError{Message: "model call failed", Err: err}
	}

	var raw rawOutput
	if err := json.Unmarshal(result.Content, &raw); err != nil {
		return nil, &PredictionError{Message: "unparseable model output", Err: err}
	}
	if raw.Predictions == nil {
		return nil, &PredictionError{Message: "model output has no predictions", Err: llm.ErrNoStructuredOutput}
	}

	out := &Prediction{
		Sources: filterPredictions(raw, in.Options.MatchingSources),
		Usage:   result.Usage,
	}
	p.log.Debugw("prediction done",
		"asset_id", in.Asset.ID,
		"sources", len(out.Sources),
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
}

// IsPredictionError 判断错误链中是否包含 PredictionError
func IsPredictionError(err error) bool {
	var pe *PredictionError
	return errors.As(err, &pe)
}

func enabledSources(toggles model.MatchingSources) []model.Source {
	var sources []model.Source
	for _, s := range model.AllSources {
		if toggles.Enabled(s) {
			sources = append(sources, s)
		}
	}
	return sources
}

// filterPredictions 丢弃未知或被关闭的来源，置信度截断到 [0,1]
func filterPredictions(raw rawOutput, toggles model.MatchingSources) []model.SourcePrediction {
	out := make([]model.SourcePrediction, 0, len(raw.Predictions))
	for _, rp := range raw.Predictions {
		source := model.Source(rp.Source)
		if !source.Valid() || !toggles.Enabled(source) {
			continue
		}
		tags := make([]model.TagGuess, 0, len(rp.Tags))
		for _, tag := range rp.Tags {
			tag.Confidence = clampConfidence(tag.Confidence)
			tags = append(tags, tag)
		}
		out = append(out, model.SourcePrediction{Source: source, Tags: tags})
	}
	return out
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
