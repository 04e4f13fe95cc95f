// Package extract turns fetched page content into structured pipeline assets
// using Anthropic models, validating every response against a JSON schema and
// retrying with the validation failure quoted back to the model.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/helix-research/pipeline-cli/internal/model"
)

// assetSchema is the contract every model response must satisfy. All seven
// fields are required; unknown fields are rejected so hallucinated columns
// surface as validation failures instead of silently dropping.
const assetSchema = `{
  "type": "object",
  "properties": {
    "assets": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "therapeutic_area":   {"type": "string"},
          "modality":           {"type": "string"},
          "phase":              {"type": "string"},
          "asset_name":         {"type": "string"},
          "description":        {"type": "string"},
          "therapeutic_target": {"type": "string"},
          "indication":         {"type": "string"}
        },
        "required": [
          "therapeutic_area", "modality", "phase", "asset_name",
          "description", "therapeutic_target", "indication"
        ],
        "additionalProperties": false
      }
    }
  },
  "required": ["assets"],
  "additionalProperties": false
}`

var schemaLoader = gojsonschema.NewStringLoader(assetSchema)

// assetEnvelope matches the schema's top-level shape.
type assetEnvelope struct {
	Assets []model.CandidateAsset `json:"assets"`
}

// ParseAssets validates raw model output against the asset schema and
// returns the decoded candidates. Markdown code fences are tolerated since
// models occasionally wrap JSON despite instructions. A returned error is
// always a validation error suitable for quoting back to the model.
func ParseAssets(raw string) ([]model.CandidateAsset, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, eris.New("response contained no JSON")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, eris.Wrap(err, "response is not valid JSON")
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return nil, eris.Errorf("schema violations: %s", strings.Join(reasons, "; "))
	}

	var envelope assetEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, eris.Wrap(err, "decode assets")
	}
	return envelope.Assets, nil
}

// stripFences removes a surrounding markdown code fence and trims to the
// outermost JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
