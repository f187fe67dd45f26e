package buffer

import (
	"sort"
	"sync"

	v1 "rollcall/pkg/api/v1"
)

// EventBuffer is a fixed-size ring of recent events for stream replay.
// Events must be added with strictly increasing, gap-free Seq.
type EventBuffer struct {
	mu     sync.RWMutex
	events []v1.Event
	size   int
	head   int
	isFull bool
}

func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = 512
	}
	return &EventBuffer{
		events: make([]v1.Event, size),
		size:   size,
	}
}

func (b *EventBuffer) Add(ev v1.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[b.head] = ev
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
}

// GetSince returns events after lastSeq. ok is false when the caller missed
// events that were already overwritten, or holds a seq from an earlier run.
func (b *EventBuffer) GetSince(lastSeq int64) ([]v1.Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.head
	start := 0
	if b.isFull {
		count = b.size
		start = b.head
	}

	if count == 0 {
		return nil, lastSeq == 0
	}

	oldest := b.events[start].Seq
	newest := b.events[(start+count-1)%b.size].Seq
	if lastSeq < oldest-1 || lastSeq > newest {
		return nil, false
	}

	// logical index i maps to physical (start + i) % size
	idx := sort.Search(count, func(i int) bool {
		return b.events[(start+i)%b.size].Seq > lastSeq
	})
	if idx == count {
		return nil, true
	}

	result := make([]v1.Event, 0, count-idx)
	for i := idx; i < count; i++ {
		result = append(result, b.events[(start+i)%b.size])
	}
	return result, true
}
