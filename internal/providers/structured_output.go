package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/rollcall/internal/types"
)

// detectionSchema is the JSON shape vision models are asked to return.
const detectionSchema = `{
  "type": "object",
  "required": ["fields"],
  "properties": {
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field_name", "raw_value"],
        "properties": {
          "field_name": {"type": "string", "minLength": 1},
          "raw_value": {"type": ["string", "number", "boolean", "null"]},
          "confidence": {"type": "number"}
        }
      }
    }
  }
}`

var (
	compiledDetectionSchema     *jsonschema.Schema
	compiledDetectionSchemaErr  error
	compiledDetectionSchemaOnce sync.Once
)

func detectionValidator() (*jsonschema.Schema, error) {
	compiledDetectionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("detections.json", bytes.NewReader([]byte(detectionSchema))); err != nil {
			compiledDetectionSchemaErr = fmt.Errorf("failed to load detection schema: %w", err)
			return
		}
		compiledDetectionSchema, compiledDetectionSchemaErr = compiler.Compile("detections.json")
	})
	return compiledDetectionSchema, compiledDetectionSchemaErr
}

// parseStructuredJSON parses JSON from model output, recovering from
// markdown code fences and prose around the object.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	for _, candidate := range []string{content, stripCodeFences(content), outermostObject(content)} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	_, body, ok := strings.Cut(trimmed, "\n")
	if !ok {
		return ""
	}
	body = strings.TrimSpace(body)
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}

// outermostObject returns the text between the first "{" and the last "}".
func outermostObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

type structuredDetections struct {
	Fields []struct {
		FieldName  string   `json:"field_name"`
		RawValue   any      `json:"raw_value"`
		Confidence *float64 `json:"confidence"`
	} `json:"fields"`
}

// decodeDetections validates model output against detectionSchema and
// converts it to field detections. Missing confidences default to
// defaultConfidence; all confidences are clamped into [0,1].
func decodeDetections(content string, defaultConfidence float64) ([]types.FieldDetection, error) {
	raw, err := parseStructuredJSON(content)
	if err != nil {
		return nil, err
	}

	schema, err := detectionValidator()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("structured output does not match schema: %w", err)
	}

	var parsed structuredDetections
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detections: %w", err)
	}

	detections := make([]types.FieldDetection, 0, len(parsed.Fields))
	for _, f := range parsed.Fields {
		conf := defaultConfidence
		if f.Confidence != nil {
			conf = *f.Confidence
		}
		detections = append(detections, types.FieldDetection{
			FieldName:  f.FieldName,
			RawValue:   rawString(f.RawValue),
			Confidence: clampConfidence(conf),
		})
	}
	return detections, nil
}

func rawString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(x)
	}
}
