package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
	"github.com/tuitionchat/tuition-chat-go/internal/storage"
)

// pongWait bounds how long a client may stay silent, pongs included.
const pongWait = 3 * config.WebsocketPing

// Stream handles GET /chat/ws/:sessionId. Each message appended to the
// session after the connection opens is pushed as a JSON text frame.
// Client frames are read only to track liveness.
func (h *Handler) Stream(c *gin.Context) {
	sessionID := c.Param("sessionId")
	// The stream outlives the upgrade handler's request context.
	ctx, cancel := context.WithCancel(ctxutil.PreserveTracing(
		ctxutil.WithSessionID(c.Request.Context(), sessionID)))
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WithError(err).DebugContext(ctx, "websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	msgs, err := h.messages.Watch(ctx, sessionID)
	if err != nil {
		h.logger.WithError(err).WarnContext(ctx, "failed to watch messages")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "watch failed"),
			time.Now().Add(config.WebsocketWrite))
		return
	}

	h.metrics.WSConnected(1)
	defer h.metrics.WSConnected(-1)
	h.logger.DebugContext(ctx, "websocket stream opened")

	go h.readPump(ctx, cancel, conn)

	if err := h.writePump(ctx, conn, msgs); err != nil && !isCloseError(err) {
		h.logger.WithError(err).DebugContext(ctx, "websocket stream ended")
	}
}

// readPump discards client frames and cancels ctx once the peer goes away.
func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// writePump is the connection's only writer.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, msgs <-chan storage.Message) error {
	ticker := time.NewTicker(config.WebsocketPing)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(config.WebsocketWrite))
		case m, ok := <-msgs:
			if !ok {
				return conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"),
					time.Now().Add(config.WebsocketWrite))
			}
			_ = conn.SetWriteDeadline(time.Now().Add(config.WebsocketWrite))
			if err := conn.WriteJSON(m); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WebsocketWrite)); err != nil {
				return err
			}
		}
	}
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
