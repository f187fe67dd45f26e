package network

import (
	"sync"

	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

// Listener receives the connectivity status.
type Listener func(online bool)

// Status is the read side of the connectivity signal.
type Status interface {
	Status() bool
	Subscribe(fn Listener) (unsubscribe func())
}

type subscription struct {
	id      int64
	fn      Listener
	removed bool
}

// delivery is one queued notification round.
type delivery struct {
	online bool
	subs   []*subscription
}

// Signal is the process-wide connectivity flag. Listeners are called in
// subscription order with no lock held. Rounds are queued and drained by one
// goroutine at a time, so every listener sees transitions in order and a
// listener may itself call Set or Subscribe; such nested calls are delivered
// after the current round finishes.
type Signal struct {
	mu         sync.Mutex
	online     bool
	subs       []*subscription
	nextID     int64
	queue      []delivery
	delivering bool
}

func NewSignal(initial bool) *Signal {
	return &Signal{online: initial}
}

func (s *Signal) Status() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe calls fn with the current status, then on every transition.
// When no delivery is in progress the first call happens before Subscribe
// returns; otherwise it follows the rounds already queued.
func (s *Signal) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, fn: fn}
	s.subs = append(s.subs, sub)
	s.queue = append(s.queue, delivery{online: s.online, subs: []*subscription{sub}})
	s.drainLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sub.removed = true
			for i, cur := range s.subs {
				if cur == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Set records a platform connectivity event. Only real transitions notify.
func (s *Signal) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.queue = append(s.queue, delivery{online: online, subs: subs})
	logger.Info("network status changed", zap.Bool("online", online))
	s.drainLocked()
}

// drainLocked is called with mu held and releases it. If another call is
// already delivering, the queued round is left to it.
func (s *Signal) drainLocked() {
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.queue) > 0 {
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, sub := range d.subs {
			if s.active(sub) {
				safeCall(sub.fn, d.online)
			}
		}

		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *Signal) active(sub *subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !sub.removed
}

func safeCall(fn Listener, online bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("network listener panicked", zap.Any("panic", r), zap.Bool("online", online))
		}
	}()
	fn(online)
}
