// Package dialogue holds the per-session conversation state and the rules
// that merge it with each newly parsed message.
package dialogue

import (
	"slices"
	"strings"

	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/router"
)

// State is what a session remembers between messages.
type State struct {
	// PendingIntent waits for a student number the user has not given yet.
	PendingIntent intent.Intent `json:"pendingIntent,omitempty"`
	// LastStudentNo is the last successfully queried student. A later
	// PAY_TUITION without a number uses it once.
	LastStudentNo string `json:"lastStudentNo,omitempty"`
}

// IsZero reports whether the state carries nothing.
func (s State) IsZero() bool {
	return s.PendingIntent == "" && s.LastStudentNo == ""
}

// Merge resolves p against the session state before routing. It may
// consume st.LastStudentNo and set st.PendingIntent.
//
// Rules, in order:
//  1. a bare number answers the pending intent
//  2. a number anywhere in the text fills a missing student number
//  3. PAY without a number reuses the last queried student, once
//  4. QUERY or PAY still missing a number becomes the pending intent
func Merge(p intent.ParsedIntent, st *State, raw string) intent.ParsedIntent {
	p.MissingFields = slices.Clone(p.MissingFields)

	if intent.IsOnlyStudentNo(raw) && st.PendingIntent != "" {
		p.Intent = st.PendingIntent
		p.StudentNo = strings.TrimSpace(raw)
		p.MissingFields = []string{}
		p.ClarifyingQuestion = ""
	}

	if p.StudentNo == "" {
		if no := intent.ExtractStudentNo(raw); no != "" {
			p.StudentNo = no
			p.MissingFields = dropField(p.MissingFields, intent.FieldStudentNo)
			if len(p.MissingFields) == 0 {
				p.ClarifyingQuestion = ""
			}
		}
	}

	if p.Intent == intent.PayTuition && p.StudentNo == "" && st.LastStudentNo != "" {
		p.StudentNo = st.LastStudentNo
		p.MissingFields = dropField(p.MissingFields, intent.FieldStudentNo)
		p.ClarifyingQuestion = ""
		st.LastStudentNo = ""
	}

	if p.Intent.NeedsStudentNo() && p.Missing(intent.FieldStudentNo) {
		st.PendingIntent = p.Intent
	}

	return p
}

// Apply records the routed outcome: a successful tuition query remembers
// the student, and any stage other than clarify ends the pending intent.
func Apply(p intent.ParsedIntent, resp router.Response, st *State) {
	if p.StudentNo != "" && p.Intent == intent.QueryTuition &&
		resp.Stage == router.StageAPI && resp.API != nil && resp.API.OK {
		st.LastStudentNo = p.StudentNo
	}
	if resp.Stage != router.StageClarify {
		st.PendingIntent = ""
	}
}

func dropField(fields []string, field string) []string {
	return slices.DeleteFunc(fields, func(f string) bool { return f == field })
}
