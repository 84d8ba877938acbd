package router

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

func TestIsStudentNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  tuition.Result
		id   string
		want bool
	}{
		{name: "404", res: tuition.Result{OK: false, Status: 404}, id: "1", want: true},
		{name: "400", res: tuition.Result{OK: false, Status: 400}, id: "1", want: true},
		{name: "500 is an error, not missing", res: tuition.Result{OK: false, Status: 500}, id: "1", want: false},
		{name: "401 is an error, not missing", res: tuition.Result{OK: false, Status: 401}, id: "1", want: false},
		{name: "nil data", res: tuition.Result{OK: true, Status: 200}, id: "1", want: true},
		{name: "empty object", res: tuition.Result{OK: true, Status: 200, Data: map[string]any{}}, id: "1", want: true},
		{name: "empty string", res: tuition.Result{OK: true, Status: 200, Data: ""}, id: "1", want: true},
		{name: "empty array", res: tuition.Result{OK: true, Status: 200, Data: []any{}}, id: "1", want: true},
		{name: "non-object data", res: tuition.Result{OK: true, Status: 200, Data: "ok"}, id: "1", want: true},
		{
			name: "no id field",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"balance": json.Number("10")}},
			id:   "1001",
			want: true,
		},
		{
			name: "falsy id field",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": ""}},
			id:   "1001",
			want: true,
		},
		{
			name: "different student",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": "2002"}},
			id:   "1001",
			want: true,
		},
		{
			name: "matching string id",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": "1001"}},
			id:   "1001",
			want: false,
		},
		{
			name: "matching numeric id",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"StudentNumber": json.Number("1001")}},
			id:   "1001",
			want: false,
		},
		{
			name: "zero id falls through to the next field",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": json.Number("0"), "studentId": "1001"}},
			id:   "1001",
			want: false,
		},
		{
			name: "single-element array id matches",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": []any{json.Number("1001")}}},
			id:   "1001",
			want: false,
		},
		{
			name: "multi-element array id does not match",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": []any{"1001", "1002"}}},
			id:   "1001",
			want: true,
		},
		{
			name: "object id does not match",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": map[string]any{"id": "1001"}}},
			id:   "1001",
			want: true,
		},
		{
			name: "first truthy field wins",
			res:  tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": "2002", "StudentNo": "1001"}},
			id:   "1001",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsStudentNotFound(tt.res, tt.id))
		})
	}
}

func TestTruthy(t *testing.T) {
	t.Parallel()
	assert.False(t, truthy(nil))
	assert.False(t, truthy(""))
	assert.False(t, truthy(false))
	assert.False(t, truthy(json.Number("0")))
	assert.False(t, truthy(json.Number("0.0")))
	assert.True(t, truthy("0"))
	assert.True(t, truthy(json.Number("7")))
	assert.True(t, truthy(map[string]any{}))
	assert.True(t, truthy([]any{}))
}

func TestToNumber(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, toNumber(nil))
	assert.Equal(t, 0.0, toNumber(""))
	assert.Equal(t, 12.5, toNumber(" 12.5 "))
	assert.Equal(t, 1500.0, toNumber(json.Number("1500")))
	assert.Equal(t, 1.0, toNumber(true))
	assert.True(t, math.IsNaN(toNumber("abc")))
	assert.True(t, math.IsNaN(toNumber(map[string]any{})))
	assert.Equal(t, 0.0, toNumber([]any{}))
	assert.Equal(t, 5.0, toNumber([]any{json.Number("5")}))
	assert.Equal(t, 7.0, toNumber([]any{[]any{"7"}}))
	assert.True(t, math.IsNaN(toNumber([]any{json.Number("1"), json.Number("2")})))
}

func TestJSString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1001", jsString(json.Number("1001")))
	assert.Equal(t, "1001", jsString(json.Number("1001.0")))
	assert.Equal(t, "2025-FALL", jsString("2025-FALL"))
	assert.Equal(t, "true", jsString(true))
	assert.Equal(t, "null", jsString(nil))
	assert.Equal(t, "1001", jsString([]any{json.Number("1001")}))
	assert.Equal(t, "1,,3", jsString([]any{json.Number("1"), nil, "3"}))
	assert.Equal(t, "1,2,3", jsString([]any{[]any{"1", "2"}, "3"}))
	assert.Equal(t, "", jsString([]any{}))
	assert.Equal(t, "[object Object]", jsString(map[string]any{"a": "b"}))
}
