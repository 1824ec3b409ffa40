package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "pomodoro/sessions/internal/errors"
	"pomodoro/sessions/internal/events"
)

const defaultHeartbeat = 25 * time.Second

// EventsHandler streams the caller's session events as server-sent events.
type EventsHandler struct {
	broker    *events.Broker
	heartbeat time.Duration
}

func NewEventsHandler(broker *events.Broker, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &EventsHandler{broker: broker, heartbeat: heartbeat}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	sub, err := h.broker.Subscribe(userID)
	if err != nil {
		writeError(c, apperrors.New(http.StatusServiceUnavailable, "unavailable", "event stream unavailable"))
		return
	}
	defer h.broker.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"userId": userID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	log.Debug().Str("userId", userID).Int("streams", h.broker.SubscriberCount(userID)).Msg("event stream opened")
	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(event.Type, string(event.Payload))
			return true
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": at.UTC()})
			return true
		}
	})
	log.Debug().Str("userId", userID).Msg("event stream closed")
}
