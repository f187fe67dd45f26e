package service

import (
	"context"
	"time"

	"rollcall/internal/metrics"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

// Client is one connected stream subscriber.
type Client struct {
	Send chan v1.Event
}

// Hub fans events out to stream subscribers. A subscriber whose buffer is
// full is dropped and must reconnect with its last seq.
type Hub struct {
	clients    map[*Client]struct{}
	Broadcast  chan v1.Event
	Register   chan *Client
	Unregister chan *Client

	observer  metrics.HubObserver
	heartbeat time.Duration
	done      chan struct{}
}

func NewHub(observer metrics.HubObserver, heartbeat time.Duration, bufferSize int) *Hub {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		Broadcast:  make(chan v1.Event, bufferSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		observer:   observer,
		heartbeat:  heartbeat,
		done:       make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Join registers c unless the hub has stopped.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		case c := <-h.Register:
			h.clients[c] = struct{}{}
			h.observer.IncSubscribers()
		case c := <-h.Unregister:
			h.remove(c)
		case ev := <-h.Broadcast:
			h.fanout(ev)
		case <-tick:
			h.fanout(v1.Event{Kind: constraints.EventPing})
		}
	}
}

func (h *Hub) fanout(ev v1.Event) {
	for c := range h.clients {
		select {
		case c.Send <- ev:
			if ev.Kind != constraints.EventPing {
				h.observer.RecordPush()
			}
		default:
			logger.Warn("stream subscriber too slow, disconnecting", zap.Int64("seq", ev.Seq))
			h.observer.RecordDrop()
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
	h.observer.DecSubscribers()
}
