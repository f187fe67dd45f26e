package service

import (
	"context"
	"sync"
	"testing"
	"time"

	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
)

type MockObserver struct {
	mu     sync.Mutex
	online int
	drops  int
}

func (m *MockObserver) IncSubscribers() { m.mu.Lock(); m.online++; m.mu.Unlock() }
func (m *MockObserver) DecSubscribers() { m.mu.Lock(); m.online--; m.mu.Unlock() }
func (m *MockObserver) RecordPush()     {}
func (m *MockObserver) RecordDrop()     { m.mu.Lock(); m.drops++; m.mu.Unlock() }

func TestHub_Concurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&MockObserver{}, 100*time.Millisecond, 512)
	go hub.Run(ctx)

	var wg sync.WaitGroup
	// Parameters for race detection
	clientCount := 50
	msgCount := 200

	clients := make([]*Client, clientCount)

	// 1. Concurrent Registration
	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c := &Client{Send: make(chan v1.Event, 50)}
			clients[idx] = c
			hub.Join(c)
		}(i)
	}
	wg.Wait()

	broadcastDone := make(chan struct{})

	// 2. Concurrent Broadcast
	go func() {
		for i := 0; i < msgCount; i++ {
			hub.Broadcast <- v1.Event{Seq: int64(i + 1), Kind: constraints.EventProgress}
			// Small delay to allow interleaving with unregister
			if i%10 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		close(broadcastDone)
	}()

	// 3. Concurrent Unregister (churn)
	go func() {
		for i := 0; i < clientCount/2; i++ {
			time.Sleep(2 * time.Millisecond)
			hub.Leave(clients[i])
		}
	}()

	// 4. Reader Consuming Loop
	var readWg sync.WaitGroup
	for i := 0; i < clientCount; i++ {
		readWg.Add(1)
		go func(c *Client) {
			defer readWg.Done()
			timeout := time.After(3 * time.Second)
			for {
				select {
				case _, ok := <-c.Send:
					if !ok {
						return // closed by the hub
					}
				case <-broadcastDone:
					for {
						select {
						case _, ok := <-c.Send:
							if !ok {
								return
							}
						default:
							return
						}
					}
				case <-timeout:
					return
				}
			}
		}(clients[i])
	}

	readWg.Wait()
}

func TestHub_SlowClientDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &MockObserver{}
	hub := NewHub(obs, 0, 8)
	go hub.Run(ctx)

	slow := &Client{Send: make(chan v1.Event, 1)}
	if !hub.Join(slow) {
		t.Fatal("join refused by running hub")
	}
	hub.Broadcast <- v1.Event{Seq: 1}
	hub.Broadcast <- v1.Event{Seq: 2}

	deadline := time.Now().Add(time.Second)
	for {
		obs.mu.Lock()
		drops, online := obs.drops, obs.online
		obs.mu.Unlock()
		if drops == 1 {
			if online != 0 {
				t.Errorf("online = %d after drop, want 0", online)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slow client was never disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the buffered event is still readable, then the channel is closed
	if ev := <-slow.Send; ev.Seq != 1 {
		t.Errorf("seq = %d, want 1", ev.Seq)
	}
	if _, ok := <-slow.Send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_StoppedHubRefusesJoin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, 0, 1)
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	if hub.Join(&Client{Send: make(chan v1.Event, 1)}) {
		t.Error("stopped hub accepted a client")
	}
	hub.Leave(&Client{})
}

func TestEventStream_SequencesAndReplays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, 0, 16)
	go hub.Run(ctx)
	stream := NewEventStream(hub, 4)

	c := &Client{Send: make(chan v1.Event, 16)}
	hub.Join(c)

	stream.Publish(v1.Event{Kind: constraints.EventProgress})
	stream.Publish(v1.Event{Kind: constraints.EventPing})
	stream.Publish(v1.Event{Kind: constraints.EventComplete})

	first := <-c.Send
	second := <-c.Send
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", first.Seq, second.Seq)
	}

	evs, ok := stream.Since(1)
	if !ok || len(evs) != 1 || evs[0].Kind != constraints.EventComplete {
		t.Errorf("Since(1) = %v ok=%v", evs, ok)
	}
}
