package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuitionchat/tuition-chat-go/internal/chat"
	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/router"
	"github.com/tuitionchat/tuition-chat-go/internal/storage"
	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChat struct {
	mu        sync.Mutex
	sessions  []string
	texts     []string
	forgotten []string
	reply     router.Response
	err       error
}

func (f *fakeChat) Process(_ context.Context, sessionID, text string) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return chat.Reply{UserMessage: text, Response: f.reply}, nil
}

func (f *fakeChat) Forget(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, sessionID)
	return nil
}

type fakeTuition struct {
	res tuition.Result
	err error
}

func (f fakeTuition) Tuition(context.Context, string) (tuition.Result, error) { return f.res, f.err }

type fakePayer struct {
	got tuition.PaymentRequest
	res tuition.Result
	err error
}

func (f *fakePayer) Pay(_ context.Context, req tuition.PaymentRequest) (tuition.Result, error) {
	f.got = req
	return f.res, f.err
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type testEnv struct {
	engine *gin.Engine
	chat   *fakeChat
	store  *storage.SQLiteStore
	payer  *fakePayer
}

func newTestEnv(t *testing.T, mutate func(*HandlerConfig)) *testEnv {
	t.Helper()
	store, err := storage.NewSQLite(context.Background(), ":memory:", storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		chat: &fakeChat{reply: router.Response{
			Stage:   router.StageAPI,
			Intent:  intent.UnpaidTuition,
			Success: true,
			API:     &tuition.Result{OK: true, Status: 200, Data: []any{}},
			UI:      &router.UI{Type: router.UIUnpaidList, Title: "Unpaid Tuitions"},
		}},
		store: store,
		payer: &fakePayer{res: tuition.Result{OK: true, Status: 200, Data: map[string]any{"paid": true}}},
	}
	cfg := HandlerConfig{
		Chat:     env.chat,
		Messages: store,
		Tuition:  fakeTuition{res: tuition.Result{OK: true, Status: 200, Data: map[string]any{"studentNo": "1001"}}},
		Payer:    env.payer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.engine = gin.New()
	NewHandler(cfg).Register(env.engine)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, r)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestChat(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w, out := env.do(t, http.MethodPost, "/chat", `{"message":"  ödenmemiş harç  ","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ödenmemiş harç", out["userMessage"])
	assert.Equal(t, "api", out["stage"])
	assert.Equal(t, "UNPAID_TUITION", out["intent"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "unpaid_list", out["ui"].(map[string]any)["type"])
	assert.Equal(t, []string{"s1"}, env.chat.sessions)
}

func TestChat_SessionKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		headers []string
		want    string
	}{
		{"body wins", `{"message":"x","sessionId":"body"}`, []string{SessionHeader, "hdr"}, "body"},
		{"header", `{"message":"x"}`, []string{SessionHeader, "hdr"}, "hdr"},
		{"client ip", `{"message":"x"}`, nil, "anonymous:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			w, _ := env.do(t, http.MethodPost, "/chat", tt.body, tt.headers...)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{tt.want}, env.chat.sessions)
		})
	}
}

func TestChat_NonStringMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w, out := env.do(t, http.MethodPost, "/chat", `{"message":1001,"sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1001", out["userMessage"])

	w, out = env.do(t, http.MethodPost, "/chat", `not json`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", out["userMessage"])
}

func TestChat_Failure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chat.err = errors.New("dial tcp: connection refused")

	w, out := env.do(t, http.MethodPost, "/chat", `{"message":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Chat failed", out["error"])
	assert.Equal(t, "dial tcp: connection refused", out["details"])
}

func TestChat_ErrorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", apperrors.NewValidationError("sessionId", "is required"), http.StatusBadRequest},
		{"busy session", fmt.Errorf("session s1: %w", apperrors.ErrStateBusy), http.StatusServiceUnavailable},
		{"rate limited", apperrors.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"auth", &apperrors.AuthError{Status: 401}, http.StatusInternalServerError},
		{"transport", apperrors.NewTransportError("unpaid", "http://api", errors.New("refused")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			env.chat.err = tt.err

			w, out := env.do(t, http.MethodPost, "/chat", `{"message":"x","sessionId":"s1"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "Chat failed", out["error"])
			assert.Equal(t, tt.err.Error(), out["details"])
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *HandlerConfig) { c.Limiter = denyAll{} })

	w, out := env.do(t, http.MethodPost, "/chat", `{"message":"x","sessionId":"s1"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", out["error"])
	assert.Empty(t, env.chat.sessions)
}

func TestChatStored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w, out := env.do(t, http.MethodPost, "/chat/firestore", `{"sessionId":"s1","message":"ödenmemiş harç"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["userMessageId"])
	assert.NotEmpty(t, out["botMessageId"])
	resp := out["response"].(map[string]any)
	assert.Equal(t, "ödenmemiş harç", resp["userMessage"])
	assert.Equal(t, "api", resp["stage"])

	msgs, err := env.store.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, storage.RoleUser, msgs[0].Role)
	assert.Equal(t, out["userMessageId"], msgs[0].ID)
	assert.Equal(t, storage.RoleBot, msgs[1].Role)
	assert.Equal(t, botPlaceholder, msgs[1].Message)
	assert.Equal(t, "api", msgs[1].Metadata["stage"])
	assert.Equal(t, "UNPAID_TUITION", msgs[1].Metadata["intent"])
	assert.Equal(t, true, msgs[1].Metadata["success"])
	assert.Equal(t, "unpaid_list", msgs[1].Metadata["ui"].(map[string]any)["type"])
}

func TestChatStored_BotMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chat.reply = router.Response{
		Stage:   router.StageClarify,
		Intent:  intent.QueryTuition,
		Message: "Öğrenci numaranı yazar mısın?",
		UI:      &router.UI{Type: router.UIAskStudentNo, Title: "Student Number"},
	}

	w, _ := env.do(t, http.MethodPost, "/chat/firestore", `{"sessionId":"s1","message":"harç sorgula"}`)
	require.Equal(t, http.StatusOK, w.Code)

	msgs, err := env.store.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Öğrenci numaranı yazar mısın?", msgs[1].Message)
	_, hasAPI := msgs[1].Metadata["api"]
	assert.False(t, hasAPI)
}

func TestChatStored_HistoryMatchesLiveAPI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chat.reply = router.Response{
		Stage:   router.StageAPI,
		Intent:  intent.QueryTuition,
		Success: true,
		API: &tuition.Result{OK: true, Status: 200, Data: map[string]any{
			"studentNo": "1001",
			"term":      "2025-FALL",
			"paidAt":    nil,
		}},
		UI: &router.UI{Type: router.UITuitionCard, Title: "Tuition"},
	}

	w, out := env.do(t, http.MethodPost, "/chat/firestore", `{"sessionId":"s1","message":"harç 1001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	live := out["response"].(map[string]any)["api"]

	_, hist := env.do(t, http.MethodGet, "/chat/history/s1", "")
	msgs := hist["messages"].([]any)
	require.Len(t, msgs, 2)
	stored := msgs[1].(map[string]any)["metadata"].(map[string]any)["api"]
	assert.Equal(t, live, stored)

	data := stored.(map[string]any)["data"].(map[string]any)
	v, ok := data["paidAt"]
	assert.True(t, ok, "paidAt missing from stored api.data")
	assert.Nil(t, v)
}

func TestChatStored_Validation(t *testing.T) {
	t.Parallel()
	for _, body := range []string{`{}`, `{"sessionId":"s1"}`, `{"message":"x"}`, `{"sessionId":"s1","message":""}`} {
		env := newTestEnv(t, nil)
		w, out := env.do(t, http.MethodPost, "/chat/firestore", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "sessionId and message are required", out["error"])
	}
}

func TestChatStored_ProcessFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.chat.err = errors.New("admin login failed")

	w, out := env.do(t, http.MethodPost, "/chat/firestore", `{"sessionId":"s1","message":"ödenmemiş"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Chat failed", out["error"])

	msgs, err := env.store.History(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := env.store.Append(ctx, storage.Message{SessionID: "s1", Role: storage.RoleUser, Message: text})
		require.NoError(t, err)
	}

	w, out := env.do(t, http.MethodGet, "/chat/history/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", out["sessionId"])
	assert.Equal(t, 3.0, out["count"])
	first := out["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "a", first["message"])
	assert.Equal(t, "s1", first["sessionId"])
	assert.Equal(t, "user", first["role"])
	assert.NotEmpty(t, first["createdAt"])

	_, out = env.do(t, http.MethodGet, "/chat/history/s1?limit=2", "")
	assert.Equal(t, 2.0, out["count"])

	_, out = env.do(t, http.MethodGet, "/chat/history/s1?limit=abc", "")
	assert.Equal(t, 3.0, out["count"])

	_, out = env.do(t, http.MethodGet, "/chat/history/empty", "")
	assert.Equal(t, 0.0, out["count"])
	assert.Equal(t, []any{}, out["messages"])
}

func TestDeleteHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, sess := range []string{"s1", "s1", "s2"} {
		_, err := env.store.Append(ctx, storage.Message{SessionID: sess, Role: storage.RoleUser, Message: "x"})
		require.NoError(t, err)
	}

	w, out := env.do(t, http.MethodDelete, "/chat/history/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 2.0, out["deleted"])
	assert.Equal(t, []string{"s1"}, env.chat.forgotten)

	w, out = env.do(t, http.MethodDelete, "/chat/clear-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, out["deleted"])
	assert.Equal(t, "All messages cleared", out["message"])
}

func TestTuition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		lookup     fakeTuition
		wantStatus int
		wantOK     bool
	}{
		{"found", fakeTuition{res: tuition.Result{OK: true, Status: 200, Data: map[string]any{}}}, http.StatusOK, true},
		{"upstream status", fakeTuition{res: tuition.Result{OK: false, Status: 404, Data: "Student not found"}}, http.StatusNotFound, false},
		{"transport", fakeTuition{err: errors.New("connection refused")}, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, func(c *HandlerConfig) { c.Tuition = tt.lookup })
			w, out := env.do(t, http.MethodGet, "/tuition/1001", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOK, out["ok"])
			if tt.lookup.err != nil {
				assert.Equal(t, "connection refused", out["error"])
			}
		})
	}
}

func TestPay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w, out := env.do(t, http.MethodPost, "/pay", `{"studentNo":"1001","term":20251,"amount":1500}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "paid", out["stage"])
	assert.Equal(t, map[string]any{"type": "payment_success", "title": "Payment", "success": true}, out["ui"])
	assert.Equal(t, tuition.PaymentRequest{StudentNo: "1001", Term: "20251", Amount: 1500}, env.payer.got)
}

func TestPay_UpstreamRejection(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.payer.res = tuition.Result{OK: false, Status: 409, Data: map[string]any{"message": "already paid"}}

	w, out := env.do(t, http.MethodPost, "/pay", `{"studentNo":"1001","term":"2025-FALL","amount":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, false, out["ui"].(map[string]any)["success"])
}

func TestPay_Validation(t *testing.T) {
	t.Parallel()
	for _, body := range []string{
		`{}`,
		`{"term":"t","amount":1}`,
		`{"studentNo":"","term":"t","amount":1}`,
		`{"studentNo":"1","amount":1}`,
		`{"studentNo":"1","term":"t"}`,
		`{"studentNo":"1","term":"t","amount":null}`,
		`garbage`,
	} {
		env := newTestEnv(t, nil)
		w, out := env.do(t, http.MethodPost, "/pay", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "studentNo, term, amount are required", out["error"])
	}
}

func TestPay_Failure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.payer.err = errors.New("admin login failed")

	w, out := env.do(t, http.MethodPost, "/pay", `{"studentNo":"1","term":"t","amount":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Payment failed", out["error"])
	assert.Equal(t, "admin login failed", out["details"])
}

func TestStream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws/s1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	// The subscription is registered right after the upgrade. Keep posting
	// until the first frame arrives.
	got := make(chan map[string]any, 1)
	go func() {
		var m map[string]any
		if err := conn.ReadJSON(&m); err == nil {
			got <- m
		}
	}()

	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case m := <-got:
			assert.Equal(t, "s1", m["sessionId"])
			assert.Equal(t, "live", m["message"])
			return
		case <-ticker.C:
			_, err := env.store.Append(context.Background(), storage.Message{
				SessionID: "s1",
				Role:      storage.RoleUser,
				Message:   "live",
			})
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("no message on websocket stream")
		}
	}
}
