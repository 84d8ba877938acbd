package router

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

// idFields are checked in order; the first truthy one is the student id in
// the response.
var idFields = []string{"studentNo", "StudentNo", "studentNumber", "StudentNumber", "studentId", "StudentId"}

// IsStudentNotFound reports whether a tuition lookup for id found nothing.
//
// The Tuition API signals a missing student either with 400/404 or with a
// 200 whose body is empty, lacks an id field, or names another student.
// Other non-2xx statuses are errors, not "not found".
func IsStudentNotFound(r tuition.Result, id string) bool {
	if !r.OK {
		return r.Status == 400 || r.Status == 404
	}

	obj, ok := r.Data.(map[string]any)
	if !ok || len(obj) == 0 {
		return true
	}

	var found any
	for _, f := range idFields {
		if v := obj[f]; truthy(v) {
			found = v
			break
		}
	}
	if found == nil {
		return true
	}
	return jsString(found) != id
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	case float64:
		return t != 0 && !math.IsNaN(t)
	default:
		return true
	}
}

// jsString renders v the way String(v) would: numbers lose trailing
// fraction zeros, so 1001.0 becomes "1001"; arrays join their elements
// with commas, nulls inside them rendering empty; objects are
// "[object Object]".
func jsString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			if e != nil {
				parts[i] = jsString(e)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// toNumber follows Number(v) for decoded JSON values. Unconvertible
// values give NaN.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case []any:
		// Number([]) is 0 and Number([5]) is 5: arrays convert via their string form.
		return toNumber(jsString(t))
	default:
		return math.NaN()
	}
}

// firstPresent returns the first non-nil obj[key], like a chain of ??.
func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
