package predictor

import (
	"fmt"
	"strings"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/llm"
)

var sourceHints = map[model.Source]string{
	model.SourceBasicInfo:        "the asset name and description",
	model.SourceMaterializedPath: "the folder path the asset is stored under",
	model.SourceContentAnalysis:  "the AI-derived description of the asset content",
	model.SourceTagKeywords:      "keywords configured on each tag",
}

var accuracyHints = map[string]string{
	model.AccuracyPrecise:  "Only return tags supported by strong, direct evidence.",
	model.AccuracyBalanced: "Return tags with reasonable supporting evidence.",
	model.AccuracyBroad:    "Return every plausibly related tag, even on weak evidence.",
}

func systemPrompt(sources []model.Source, accuracy string) string {
	var b strings.Builder
	b.WriteString("You tag digital assets using a team taxonomy of at most 3 levels.\n")
	b.WriteString("Always choose leaf tags. Use the tag ids exactly as given.\n")
	b.WriteString("For each evidence source below, list the tags it supports with a confidence between 0 and 1:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- %s: %s\n", s, sourceHints[s])
	}
	hint, ok := accuracyHints[accuracy]
	if !ok {
		hint = accuracyHints[model.AccuracyBalanced]
	}
	b.WriteString(hint)
	return b.String()
}

// serializeTaxonomy 每行一个节点：缩进表示层级，最多三级
func serializeTaxonomy(tree []*model.TagNode) string {
	var b strings.Builder
	b.WriteString("Taxonomy:\n")
	writeNodes(&b, tree, 0)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []*model.TagNode, depth int) {
	if depth >= model.MaxTagDepth {
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		fmt.Fprintf(b, "%s- [%s] %s", indent, n.ID, n.Name)
		if len(n.Keywords) > 0 {
			fmt.Fprintf(b, " (keywords: %s)", strings.Join(n.Keywords, ", "))
		}
		b.WriteByte('\n')
		writeNodes(b, n.Children, depth+1)
	}
}

func assetContext(asset *model.Asset) string {
	var b strings.Builder
	b.WriteString("Asset:\n")
	fmt.Fprintf(&b, "name: %s\n", asset.Name)
	fmt.Fprintf(&b, "description: %s\n", asset.Description)
	fmt.Fprintf(&b, "folder path: %s\n", asset.MaterializedPath)
	fmt.Fprintf(&b, "content description: %s\n", asset.ContentDescription)
	return b.String()
}

func predictionSchema() llm.Schema {
	sources := make([]interface{}, 0, len(model.AllSources))
	for _, s := range model.AllSources {
		sources = append(sources, string(s))
	}

	tag := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"leaf_tag_id": map[string]interface{}{"type": "string"},
			"tag_path": map[string]interface{}{
				"type":     "array",
				"items":    map[string]interface{}{"type": "string"},
				"minItems": 1,
				"maxItems": model.MaxTagDepth,
			},
			"confidence": map[string]interface{}{"type": "number"},
		},
		"required":             []string{"leaf_tag_id", "tag_path", "confidence"},
		"additionalProperties": false,
	}

	return llm.Schema{
		Name:   "source_based_predictions",
		Strict: true,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"predictions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"source": map[string]interface{}{"type": "string", "enum": sources},
							"tags":   map[string]interface{}{"type": "array", "items": tag},
						},
						"required":             []string{"source", "tags"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"predictions"},
			"additionalProperties": false,
		},
	}
}
