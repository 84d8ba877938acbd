package tuition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Result is the raw outcome of a Tuition API call, passed through to clients
// unchanged.
//
// Data holds the decoded JSON body (numbers as json.Number), the body text
// when it is not valid JSON, or nil when the body is empty.
type Result struct {
	OK     bool `json:"ok"`
	Status int  `json:"status"`
	Data   any  `json:"data"`
}

// Field returns Data[key] when Data is a JSON object.
func (r Result) Field(key string) (any, bool) {
	obj, ok := r.Data.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Message returns data.message as text, or "" when absent.
func (r Result) Message() string {
	v, ok := r.Field("message")
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	// Trailing content makes the whole body invalid JSON.
	if _, err := dec.Token(); err != io.EOF {
		return string(raw)
	}
	return v
}

// LooseString accepts a JSON string or number and always marshals as a string.
// Term identifiers arrive as either ("2025-FALL", 20251).
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = LooseString(str)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("looseString: expected string or number, got %s", b)
		}
		*s = LooseString(n.String())
		return nil
	}
}

// PaymentRequest is the body posted to /api/v1/Payments.
type PaymentRequest struct {
	StudentNo LooseString `json:"studentNo"`
	Term      LooseString `json:"term"`
	Amount    float64     `json:"amount"`
}
