package genai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tuitionchat/tuition-chat-go/internal/intent"
)

// ErrInvalidOutput marks a model reply that is not JSON or fails the schema.
var ErrInvalidOutput = errors.New("invalid classifier output")

// outputSchema accepts studentNo as a digit string, an integer, or null.
// missingFields and clarifyingQuestion may be present but are ignored.
var outputSchema = map[string]any{
	"type":     "object",
	"required": []any{"intent"},
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []any{
				string(intent.QueryTuition),
				string(intent.PayTuition),
				string(intent.UnpaidTuition),
				string(intent.Unknown),
			},
		},
		"studentNo": map[string]any{
			"anyOf": []any{
				map[string]any{"type": "null"},
				map[string]any{"type": "string", "pattern": `^\d{2,12}$`},
				map[string]any{"type": "integer", "minimum": 10, "maximum": 999999999999},
			},
		},
	},
}

var compiledSchema = mustCompile(outputSchema)

func mustCompile(schema map[string]any) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("genai: bad output schema: %v", err))
	}
	return s
}

// decodeOutput validates a raw model reply and converts it.
func decodeOutput(raw string) (*intent.ParsedIntent, error) {
	raw = stripFence(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidOutput)
	}

	result, err := compiledSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutput, strings.Join(errs, "; "))
	}

	var out struct {
		Intent    intent.Intent `json:"intent"`
		StudentNo any           `json:"studentNo"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	p := &intent.ParsedIntent{Intent: out.Intent}
	switch v := out.StudentNo.(type) {
	case string:
		p.StudentNo = v
	case json.Number:
		p.StudentNo = v.String()
	}
	return p, nil
}

// stripFence removes a ```json ... ``` wrapper some models add even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
