// Package intent turns a free-text chat message into a ParsedIntent, by
// keyword and regex matching with an optional classifier fallback.
package intent

import (
	"encoding/json"
	"slices"
)

// Intent is one of the fixed actions the router knows.
type Intent string

const (
	QueryTuition  Intent = "QUERY_TUITION"
	PayTuition    Intent = "PAY_TUITION"
	UnpaidTuition Intent = "UNPAID_TUITION"
	Unknown       Intent = "UNKNOWN"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case QueryTuition, PayTuition, UnpaidTuition, Unknown:
		return true
	}
	return false
}

// NeedsStudentNo reports whether the intent takes a student number slot.
func (i Intent) NeedsStudentNo() bool {
	return i == QueryTuition || i == PayTuition
}

// FieldStudentNo is the only slot the dialogue fills.
const FieldStudentNo = "studentNo"

// ClarifyQuestion asks for the missing student number.
const ClarifyQuestion = "Öğrenci numaran nedir?/ What is your Student id number"

// ParsedIntent is the parser's verdict for one message.
// An empty StudentNo or ClarifyingQuestion means absent.
type ParsedIntent struct {
	Intent             Intent
	StudentNo          string
	MissingFields      []string
	ClarifyingQuestion string
}

// Missing reports whether field is listed in MissingFields.
func (p ParsedIntent) Missing(field string) bool {
	return slices.Contains(p.MissingFields, field)
}

// Normalize recomputes MissingFields and ClarifyingQuestion from Intent and
// StudentNo so that studentNo is missing exactly when a QUERY or PAY intent
// has no id.
func Normalize(p ParsedIntent) ParsedIntent {
	if !p.Intent.Valid() {
		p.Intent = Unknown
	}
	if p.Intent.NeedsStudentNo() && p.StudentNo == "" {
		p.MissingFields = []string{FieldStudentNo}
		p.ClarifyingQuestion = ClarifyQuestion
		return p
	}
	p.MissingFields = []string{}
	p.ClarifyingQuestion = ""
	return p
}

type parsedIntentJSON struct {
	Intent             Intent   `json:"intent"`
	StudentNo          *string  `json:"studentNo"`
	MissingFields      []string `json:"missingFields"`
	ClarifyingQuestion *string  `json:"clarifyingQuestion"`
}

// MarshalJSON writes absent strings as null and missing fields as [].
func (p ParsedIntent) MarshalJSON() ([]byte, error) {
	out := parsedIntentJSON{
		Intent:        p.Intent,
		MissingFields: p.MissingFields,
	}
	if out.MissingFields == nil {
		out.MissingFields = []string{}
	}
	if p.StudentNo != "" {
		out.StudentNo = &p.StudentNo
	}
	if p.ClarifyingQuestion != "" {
		out.ClarifyingQuestion = &p.ClarifyingQuestion
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null for the optional strings.
func (p *ParsedIntent) UnmarshalJSON(b []byte) error {
	var in parsedIntentJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*p = ParsedIntent{Intent: in.Intent, MissingFields: in.MissingFields}
	if in.StudentNo != nil {
		p.StudentNo = *in.StudentNo
	}
	if in.ClarifyingQuestion != nil {
		p.ClarifyingQuestion = *in.ClarifyingQuestion
	}
	return nil
}
