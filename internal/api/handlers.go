// Package api implements the chat front-end's HTTP endpoints on gin.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tuitionchat/tuition-chat-go/internal/chat"
	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
	"github.com/tuitionchat/tuition-chat-go/internal/router"
	"github.com/tuitionchat/tuition-chat-go/internal/sentry"
	"github.com/tuitionchat/tuition-chat-go/internal/storage"
	"github.com/tuitionchat/tuition-chat-go/internal/tuition"
)

// SessionHeader carries the session ID for clients that do not send it in the body.
const SessionHeader = "X-Session-Id"

// botPlaceholder is stored when a routed response has no message.
const botPlaceholder = "Processing..."

// ChatService processes messages and owns dialogue state.
type ChatService interface {
	Process(ctx context.Context, sessionID, text string) (chat.Reply, error)
	Forget(ctx context.Context, sessionID string) error
}

// TuitionLookup fetches a student's tuition record.
type TuitionLookup interface {
	Tuition(ctx context.Context, studentNo string) (tuition.Result, error)
}

// Payer submits a confirmed payment.
type Payer interface {
	Pay(ctx context.Context, req tuition.PaymentRequest) (tuition.Result, error)
}

// Limiter admits requests per key.
type Limiter interface {
	Allow(key string) bool
}

// HandlerConfig holds the Handler's collaborators.
type HandlerConfig struct {
	Chat     ChatService
	Messages storage.MessageStore
	Tuition  TuitionLookup
	Payer    Payer
	Limiter  Limiter // nil disables the chat rate limit
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Handler serves the chat, history, tuition and payment endpoints.
type Handler struct {
	chat     ChatService
	messages storage.MessageStore
	tuition  TuitionLookup
	payer    Payer
	limiter  Limiter
	logger   *logger.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		chat:     cfg.Chat,
		messages: cfg.Messages,
		tuition:  cfg.Tuition,
		payer:    cfg.Payer,
		limiter:  cfg.Limiter,
		logger:   log.WithModule("api"),
		metrics:  cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are governed by the CORS policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts every endpoint on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/chat", h.Chat)
	r.POST("/chat/firestore", h.ChatStored)
	r.GET("/chat/history/:sessionId", h.History)
	r.DELETE("/chat/history/:sessionId", h.DeleteHistory)
	r.DELETE("/chat/clear-all", h.ClearAll)
	r.GET("/chat/ws/:sessionId", h.Stream)
	r.GET("/tuition/:studentNo", h.Tuition)
	r.POST("/pay", h.Pay)
}

type chatRequest struct {
	Message   any    `json:"message"`
	SessionID string `json:"sessionId"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	// A missing or malformed body is an empty message.
	_ = c.ShouldBindJSON(&req)

	sessionID := h.sessionKey(c, req.SessionID)
	if !h.allow(c, sessionID) {
		return
	}
	ctx := ctxutil.WithSessionID(c.Request.Context(), sessionID)

	reply, err := h.chat.Process(ctx, sessionID, strings.TrimSpace(messageText(req.Message)))
	if err != nil {
		h.fail(ctx, c, "Chat failed", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ChatStored handles POST /chat/firestore: the user message and the bot
// reply are both appended to the message store.
func (h *Handler) ChatStored(c *gin.Context) {
	var req chatRequest
	_ = c.ShouldBindJSON(&req)

	text := messageText(req.Message)
	if req.SessionID == "" || text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and message are required"})
		return
	}
	if !h.allow(c, req.SessionID) {
		return
	}
	ctx := ctxutil.WithSessionID(c.Request.Context(), req.SessionID)

	userMsg, err := h.messages.Append(ctx, storage.Message{
		SessionID: req.SessionID,
		Role:      storage.RoleUser,
		Message:   text,
	})
	if err != nil {
		h.fail(ctx, c, "Chat failed", err)
		return
	}

	reply, err := h.chat.Process(ctx, req.SessionID, strings.TrimSpace(text))
	if err != nil {
		h.fail(ctx, c, "Chat failed", err)
		return
	}

	botText := reply.Message
	if botText == "" {
		botText = botPlaceholder
	}
	botMsg, err := h.messages.Append(ctx, storage.Message{
		SessionID: req.SessionID,
		Role:      storage.RoleBot,
		Message:   botText,
		Metadata:  replyMetadata(reply.Response),
	})
	if err != nil {
		h.fail(ctx, c, "Chat failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"userMessageId": userMsg.ID,
		"botMessageId":  botMsg.ID,
		"response":      reply,
	})
}

// History handles GET /chat/history/:sessionId?limit=.
func (h *Handler) History(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	ctx := ctxutil.WithSessionID(c.Request.Context(), sessionID)
	msgs, err := h.messages.History(ctx, sessionID, limit)
	if err != nil {
		h.fail(ctx, c, "Failed to get history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"messages":  msgs,
		"count":     len(msgs),
	})
}

// DeleteHistory handles DELETE /chat/history/:sessionId. The session's
// dialogue state is dropped along with its messages.
func (h *Handler) DeleteHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")
	ctx := ctxutil.WithSessionID(c.Request.Context(), sessionID)

	n, err := h.messages.DeleteSession(ctx, sessionID)
	if err != nil {
		h.fail(ctx, c, "Failed to delete history", err)
		return
	}
	if err := h.chat.Forget(ctx, sessionID); err != nil {
		h.logger.WithError(err).WarnContext(ctx, "failed to drop dialogue state")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

// ClearAll handles DELETE /chat/clear-all.
func (h *Handler) ClearAll(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.messages.DeleteAll(ctx)
	if err != nil {
		h.fail(ctx, c, "Failed to clear all messages", err)
		return
	}
	h.logger.WarnContext(ctx, "all messages cleared", "deleted", n)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": n,
		"message": "All messages cleared",
	})
}

// Tuition handles GET /tuition/:studentNo as a passthrough.
func (h *Handler) Tuition(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.tuition.Tuition(ctx, c.Param("studentNo"))
	if err != nil {
		kind := apperrors.Kind(err)
		h.logger.WithError(err).WithField("error_kind", kind).ErrorContext(ctx, "tuition lookup failed")
		sentry.CaptureExceptionWithTags(ctx, err, map[string]string{"error_kind": kind})
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	status := http.StatusOK
	if !res.OK {
		status = res.Status
		if status < 100 || status > 599 {
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, res)
}

type payRequest struct {
	StudentNo tuition.LooseString  `json:"studentNo"`
	Term      *tuition.LooseString `json:"term"`
	Amount    *float64             `json:"amount"`
}

// Pay handles POST /pay from the confirm button of a pay card.
func (h *Handler) Pay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StudentNo == "" || req.Term == nil || req.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentNo, term, amount are required"})
		return
	}
	ctx := c.Request.Context()

	res, err := h.payer.Pay(ctx, tuition.PaymentRequest{
		StudentNo: req.StudentNo,
		Term:      *req.Term,
		Amount:    *req.Amount,
	})
	if err != nil {
		h.fail(ctx, c, "Payment failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": res.OK,
		"stage":   "paid",
		"api":     res,
		"ui":      router.PaymentUI(res.OK),
	})
}

// sessionKey resolves the dialogue session: body, header, then client IP.
func (h *Handler) sessionKey(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if v := c.GetHeader(SessionHeader); v != "" {
		return v
	}
	return "anonymous:" + c.ClientIP()
}

// allow applies the per-session chat limit, answering 429 when exceeded.
func (h *Handler) allow(c *gin.Context, sessionID string) bool {
	if h.limiter == nil || h.limiter.Allow(sessionID) {
		return true
	}
	h.logger.WithError(apperrors.ErrRateLimitExceeded).
		WarnContext(c.Request.Context(), "chat rate limit exceeded", "session_id", sessionID)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	return false
}

// fail answers with msg and the cause, with the status chosen by error kind.
// Only 500s are captured to Sentry.
func (h *Handler) fail(ctx context.Context, c *gin.Context, msg string, err error) {
	kind := apperrors.Kind(err)
	status := statusFor(kind)
	wrapped := apperrors.NewWrapper("api", c.FullPath()).Wrap(err, msg)

	log := h.logger.WithError(wrapped).WithField("error_kind", kind).WithField("status", status)
	if status == http.StatusInternalServerError {
		log.ErrorContext(ctx, msg)
		sentry.CaptureExceptionWithTags(ctx, wrapped, map[string]string{"error_kind": kind})
	} else {
		log.WarnContext(ctx, msg)
	}
	c.JSON(status, gin.H{
		"error":   apperrors.GetUserMessage(wrapped),
		"details": err.Error(),
	})
}

func statusFor(kind string) int {
	switch kind {
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindStateBusy:
		return http.StatusServiceUnavailable
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// replyMetadata is what the bot message keeps of a routed response.
func replyMetadata(r router.Response) map[string]any {
	meta := map[string]any{
		"stage":   r.Stage,
		"intent":  r.Intent,
		"success": r.Success,
	}
	if r.UI != nil {
		meta["ui"] = r.UI
	}
	if r.API != nil {
		meta["api"] = r.API
	}
	return meta
}

// messageText renders a JSON message value the way String() would.
func messageText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
