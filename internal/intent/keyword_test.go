package intent

import (
	"encoding/json"
	"testing"
)

func TestKeywordParser_Parse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		intent    Intent
		studentNo string
		missing   bool
	}{
		{"pay with id", "harç öde 1234", PayTuition, "1234", false},
		{"query with id", "harç 1001 sorgula", QueryTuition, "1001", false},
		{"query english", "tuition for 88", QueryTuition, "88", false},
		{"query without id", "harç borcum ne kadar", QueryTuition, "", true},
		{"pay without id", "pay my fees", PayTuition, "", true},
		{"unpaid wins over pay", "ödenmemiş harç öde 1234", UnpaidTuition, "", false},
		{"unpaid english", "list unpaid", UnpaidTuition, "", false},
		{"ascii harc", "harc 42", QueryTuition, "42", false},
		{"upper case turkish", "HARÇ ÖDE 5555", PayTuition, "5555", false},
		{"upper case dotless I", "UNPAID LIST", UnpaidTuition, "", false},
		{"decomposed umlaut", "o\u0308de 77", PayTuition, "77", false},
		{"digits only is unknown", "1234", Unknown, "", false},
		{"no keyword", "merhaba", Unknown, "", false},
		{"one digit is no id", "harç 7", QueryTuition, "", true},
		{"thirteen digits is no id", "harç 1234567890123", QueryTuition, "", true},
		{"embedded digits are no id", "harç abc123", QueryTuition, "", true},
		{"first id wins", "tuition 11 22", QueryTuition, "11", false},
	}

	k := NewKeywordParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := k.Parse(tt.text)
			if got.Intent != tt.intent {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.intent)
			}
			if got.StudentNo != tt.studentNo {
				t.Errorf("StudentNo = %q, want %q", got.StudentNo, tt.studentNo)
			}
			if got.Missing(FieldStudentNo) != tt.missing {
				t.Errorf("Missing(studentNo) = %v, want %v", got.Missing(FieldStudentNo), tt.missing)
			}
			if tt.missing && got.ClarifyingQuestion != ClarifyQuestion {
				t.Errorf("ClarifyingQuestion = %q", got.ClarifyingQuestion)
			}
			if !tt.missing && got.ClarifyingQuestion != "" {
				t.Errorf("ClarifyingQuestion should be empty, got %q", got.ClarifyingQuestion)
			}
		})
	}
}

func TestIsOnlyStudentNo(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"1234":           true,
		"  88 ":          true,
		"\t123456789012": true,
		"1":              false,
		"1234567890123":  false,
		"12a":            false,
		"12 34":          false,
		"":               false,
	}
	for in, want := range tests {
		if got := IsOnlyStudentNo(in); got != want {
			t.Errorf("IsOnlyStudentNo(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize(ParsedIntent{Intent: "BOGUS", StudentNo: "12", MissingFields: []string{"x"}})
	if got.Intent != Unknown || len(got.MissingFields) != 0 {
		t.Errorf("unknown intent should normalize to UNKNOWN with no missing fields, got %+v", got)
	}

	got = Normalize(ParsedIntent{Intent: PayTuition, ClarifyingQuestion: "where?"})
	if !got.Missing(FieldStudentNo) || got.ClarifyingQuestion != ClarifyQuestion {
		t.Errorf("PAY without id must miss studentNo, got %+v", got)
	}

	got = Normalize(ParsedIntent{Intent: QueryTuition, StudentNo: "1001", MissingFields: []string{FieldStudentNo}})
	if got.Missing(FieldStudentNo) {
		t.Errorf("QUERY with id must not miss studentNo, got %+v", got)
	}
}

func TestParsedIntent_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ParsedIntent{Intent: UnpaidTuition})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"intent":"UNPAID_TUITION","studentNo":null,"missingFields":[],"clarifyingQuestion":null}`
	if string(b) != want {
		t.Errorf("Marshal = %s, want %s", b, want)
	}

	var p ParsedIntent
	if err := json.Unmarshal([]byte(`{"intent":"PAY_TUITION","studentNo":"1001","missingFields":[],"clarifyingQuestion":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Intent != PayTuition || p.StudentNo != "1001" || p.ClarifyingQuestion != "" {
		t.Errorf("Unmarshal = %+v", p)
	}
}
