package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"rollcall/internal/repository"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

const FailedSetKey = "failed_sync_items"

// FailedSet holds submission ids the remote service rejected for good.
// Every mutation is written through to a single KV slot.
type FailedSet struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
	kv  repository.KV
	key string
}

func NewFailedSet(kv repository.KV, key string) *FailedSet {
	if key == "" {
		key = FailedSetKey
	}
	return &FailedSet{ids: make(map[int64]struct{}), kv: kv, key: key}
}

// Load replaces the in-memory set with the persisted one.
func (f *FailedSet) Load(ctx context.Context) error {
	raw, ok, err := f.kv.Get(ctx, f.key)
	if err != nil {
		return fmt.Errorf("load failed set: %w", err)
	}
	ids := make(map[int64]struct{})
	if ok && raw != "" {
		var list []int64
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			// a corrupt slot loses stickiness, not data
			logger.Warn("discarding unreadable failed set", zap.String("raw", raw), zap.Error(err))
			list = nil
		}
		for _, id := range list {
			ids[id] = struct{}{}
		}
	}

	f.mu.Lock()
	f.ids = ids
	f.mu.Unlock()
	return nil
}

func (f *FailedSet) Contains(id int64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[id]
	return ok
}

// IDs returns a sorted snapshot.
func (f *FailedSet) IDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *FailedSet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

func (f *FailedSet) Add(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return nil
	}
	f.ids[id] = struct{}{}
	return f.persistLocked(ctx)
}

// Remove drops ids and persists once. Unknown ids are ignored.
func (f *FailedSet) Remove(ctx context.Context, ids ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := false
	for _, id := range ids {
		if _, ok := f.ids[id]; ok {
			delete(f.ids, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.persistLocked(ctx)
}

func (f *FailedSet) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = make(map[int64]struct{})
	return f.persistLocked(ctx)
}

func (f *FailedSet) snapshotLocked() []int64 {
	list := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		list = append(list, id)
	}
	slices.Sort(list)
	return list
}

func (f *FailedSet) persistLocked(ctx context.Context) error {
	b, err := json.Marshal(f.snapshotLocked())
	if err != nil {
		return err
	}
	if err := f.kv.Set(ctx, f.key, string(b)); err != nil {
		return fmt.Errorf("persist failed set: %w", err)
	}
	return nil
}
