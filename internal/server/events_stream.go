package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/gin-gonic/gin"
)

const (
	streamEventHeartbeat = "heartbeat"
	heartbeatInterval    = 25 * time.Second
)

// EventSource is the subscription side of the event dispatcher.
type EventSource interface {
	Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Message, func())
}

type streamPayload struct {
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// streamEvents writes dispatcher messages as server-sent events until the client leaves.
func streamEvents(c *gin.Context, source EventSource, heartbeat time.Duration, topics ...events.Topic) {
	stream, unsubscribe := source.Subscribe(c.Request.Context(), topics...)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(message.Topic), streamPayload{Payload: message.Payload, Timestamp: message.Timestamp})
			return true
		case tick := <-ticker.C:
			c.SSEvent(streamEventHeartbeat, streamPayload{Timestamp: tick.UTC()})
			return true
		}
	})
}
