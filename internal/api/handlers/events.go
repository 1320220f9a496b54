package handlers

import (
	"net/http"
	"time"

	"stockhub/internal/events"
	"stockhub/internal/logger"

	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	bus       *events.Bus
	logger    *logger.Logger
	keepAlive time.Duration
}

func NewEventsHandler(bus *events.Bus, logger *logger.Logger) *EventsHandler {
	return &EventsHandler{
		bus:       bus,
		logger:    logger,
		keepAlive: 25 * time.Second,
	}
}

// Stream relays bus events as server-sent events until the client leaves.
func (h *EventsHandler) Stream(c *gin.Context) {
	ch, cancel := h.bus.Subscribe(32)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(e.Type), e)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
