package service

import (
	"context"
	"sync"

	"rollcall/internal/buffer"
	"rollcall/internal/network"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
)

// EventStream numbers events, keeps them for replay and hands them to the hub.
type EventStream struct {
	mu     sync.Mutex
	seq    int64
	buffer *buffer.EventBuffer
	hub    *Hub
}

func NewEventStream(hub *Hub, replaySize int) *EventStream {
	return &EventStream{
		buffer: buffer.NewEventBuffer(replaySize),
		hub:    hub,
	}
}

// Publish is safe to call from any goroutine. It blocks while the hub's
// broadcast queue is full, so seq order is preserved.
func (s *EventStream) Publish(ev v1.Event) {
	if ev.Kind == constraints.EventPing {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev.Seq = s.seq
	s.buffer.Add(ev)
	if s.hub == nil {
		return
	}
	select {
	case s.hub.Broadcast <- ev:
	case <-s.hub.Done():
	}
}

func (s *EventStream) Since(lastSeq int64) ([]v1.Event, bool) {
	return s.buffer.GetSince(lastSeq)
}

// WatchNetwork publishes connectivity transitions until ctx is done.
func (s *EventStream) WatchNetwork(ctx context.Context, signal network.Status) {
	unsubscribe := signal.Subscribe(func(online bool) {
		s.Publish(v1.Event{Kind: constraints.EventNetwork, Online: &online})
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
}
