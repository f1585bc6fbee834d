package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const realtimeHeartbeatInterval = 25 * time.Second

// handleEventStream serves change notifications as server-sent events. A question_id query
// parameter narrows the stream to one question; without it every change is delivered.
// A heartbeat is written immediately so clients observe the subscription before any change.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	topic := strings.TrimSpace(c.Query("question_id"))
	ctx := c.Request.Context()

	stream, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()
	streamClosed := h.metrics.StreamOpened()
	defer streamClosed()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("realtime stream opened", zap.String("question_id", topic))
	c.SSEvent(realtimeEventHeartbeat, newRealtimeEventPayload(RealtimeMessage{Timestamp: time.Now().UTC()}))
	c.Writer.Flush()

	ticker := time.NewTicker(realtimeHeartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, newRealtimeEventPayload(message))
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, newRealtimeEventPayload(RealtimeMessage{Timestamp: tick.UTC()}))
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.String("question_id", topic))
}
