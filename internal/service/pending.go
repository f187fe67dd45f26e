package service

import (
	"context"
	"errors"

	"rollcall/internal/model"
	"rollcall/internal/repository"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

var ErrGroupNotFound = errors.New("pending group not found")

// PendingService is the user-facing view of the queue. Duplicates are kept in
// storage and collapsed here by class session.
type PendingService struct {
	queue  repository.QueueStore
	failed *FailedSet
}

func NewPendingService(queue repository.QueueStore, failed *FailedSet) *PendingService {
	return &PendingService{queue: queue, failed: failed}
}

func (s *PendingService) List(ctx context.Context) (*v1.PendingList, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return &v1.PendingList{Total: len(pending), Groups: s.group(pending)}, nil
}

// Groups returns pending entries grouped by class, date and session type,
// ordered by their oldest entry.
func (s *PendingService) Groups(ctx context.Context) ([]v1.PendingGroup, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return s.group(pending), nil
}

func (s *PendingService) group(pending []model.QueuedSubmission) []v1.PendingGroup {
	index := make(map[string]int)
	groups := make([]v1.PendingGroup, 0)

	for _, sub := range pending {
		key := v1.GroupKey(sub.ClassID, sub.Date, sub.SessionType)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, v1.PendingGroup{
				Key:         key,
				ClassID:     sub.ClassID,
				Date:        sub.Date,
				SessionType: sub.SessionType,
			})
		}
		g := &groups[i]
		g.IDs = append(g.IDs, sub.ID)
		if s.failed.Contains(sub.ID) {
			g.Failed = true
			g.FailedIDs = append(g.FailedIDs, sub.ID)
		}
		// ids ascend, so the last one seen is the newest
		if payload, err := sub.Decode(); err == nil {
			g.Latest = payload
			g.Timestamp = sub.Timestamp
		} else {
			logger.Warn("unreadable queued payload", zap.Int64("id", sub.ID), zap.Error(err))
		}
	}

	for i := range groups {
		groups[i].Duplicate = len(groups[i].IDs) > 1
	}
	return groups
}

// DeleteGroup removes every queued entry behind one grouped item.
func (s *PendingService) DeleteGroup(ctx context.Context, key string) (int, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if g.Key != key {
			continue
		}
		if err := s.remove(ctx, g.IDs); err != nil {
			return 0, err
		}
		logger.Info("pending group deleted", zap.String("key", key), zap.Int("count", len(g.IDs)))
		return len(g.IDs), nil
	}
	return 0, ErrGroupNotFound
}

// DeleteDuplicates keeps the newest entry of every group.
func (s *PendingService) DeleteDuplicates(ctx context.Context) (int, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return 0, err
	}
	var stale []int64
	for _, g := range groups {
		if len(g.IDs) > 1 {
			stale = append(stale, g.IDs[:len(g.IDs)-1]...)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.remove(ctx, stale); err != nil {
		return 0, err
	}
	logger.Info("duplicate pending entries deleted", zap.Int("count", len(stale)))
	return len(stale), nil
}

// Delete cancels a single queued entry. Absent ids are not an error.
func (s *PendingService) Delete(ctx context.Context, id int64) error {
	return s.remove(ctx, []int64{id})
}

func (s *PendingService) remove(ctx context.Context, ids []int64) error {
	if err := s.queue.DeleteMany(ctx, ids); err != nil {
		return err
	}
	if err := s.failed.Remove(ctx, ids...); err != nil {
		logger.Warn("failed to persist failed set after delete", zap.Error(err))
	}
	return nil
}
