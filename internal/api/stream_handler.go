package api

import (
	"io"
	"net/http"

	"rollcall/internal/dto/req"
	"rollcall/internal/dto/resp"
	"rollcall/internal/service"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
	"rollcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReplaySource interface {
	Since(lastSeq int64) ([]v1.Event, bool)
}

type StreamHandler struct {
	stream ReplaySource
	hub    *service.Hub
}

func NewStreamHandler(stream ReplaySource, hub *service.Hub) *StreamHandler {
	return &StreamHandler{
		stream: stream,
		hub:    hub,
	}
}

// Watch streams sync events as SSE. Clients pass the last seq they saw and
// get the missed events replayed, or a reset when the gap is too old.
func (h *StreamHandler) Watch(c *gin.Context) {
	var q req.StreamQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.LastSeq < 0 {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid last_seq"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := &service.Client{Send: make(chan v1.Event, 128)}

	// join before replaying so nothing published in between is lost
	if !h.hub.Join(client) {
		c.JSON(http.StatusServiceUnavailable, resp.ErrorResponse{Error: "event stream stopped"})
		return
	}
	defer h.hub.Leave(client)

	logger.Info("stream client connected",
		zap.Int64("last_seq", q.LastSeq),
		zap.String("actor", service.ActorName(c.Request.Context())),
		zap.String("ip", c.ClientIP()),
	)

	maxSent := q.LastSeq
	events, ok := h.stream.Since(q.LastSeq)
	if ok {
		for _, ev := range events {
			c.SSEvent("message", ev)
			maxSent = ev.Seq
		}
	} else {
		c.SSEvent("reset", "seq_too_old")
		maxSent = 0
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				return false
			}
			if ev.Kind == constraints.EventPing {
				c.SSEvent("ping", "pong")
				return true
			}
			// already delivered by the replay
			if ev.Seq <= maxSent {
				return true
			}
			c.SSEvent("message", ev)
			maxSent = ev.Seq
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
