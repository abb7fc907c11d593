package feedback

import (
	"encoding/json"

	"cohorte/api/internal/annotation"
)

// Schema is the strict JSON schema of a PersonaAnalysis. Every property is
// required, so the optional reaction is a nullable enum.
func Schema(cfg annotation.PolicyConfig, maxAnnotations int) json.RawMessage {
	categories := make([]string, 0, len(annotation.Categories))
	for _, c := range annotation.Categories {
		categories = append(categories, string(c))
	}
	severities := make([]string, 0, len(annotation.Severities))
	for _, s := range annotation.Severities {
		severities = append(severities, string(s))
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"persona_name", "overall", "annotations"},
		"properties": map[string]any{
			"persona_name": map[string]any{"type": "string"},
			"overall": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"comment", "liked"},
				"properties": map[string]any{
					"comment": map[string]any{"type": "string", "maxLength": cfg.OverallMaxChars},
					"liked":   map[string]any{"type": "boolean"},
				},
			},
			"annotations": map[string]any{
				"type":     "array",
				"maxItems": maxAnnotations,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"line", "comment", "category", "severity", "reaction"},
					"properties": map[string]any{
						"line":     map[string]any{"type": "integer", "minimum": 1},
						"comment":  map[string]any{"type": "string", "maxLength": cfg.CommentMaxChars},
						"category": map[string]any{"type": "string", "enum": categories},
						"severity": map[string]any{"type": "string", "enum": severities},
						"reaction": map[string]any{
							"type": []string{"string", "null"},
							"enum": []any{string(annotation.ReactionLike), string(annotation.ReactionDislike), nil},
						},
					},
				},
			},
		},
	}
	raw, _ := json.Marshal(schema)
	return raw
}
