package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/metrics"
	"rollcall/internal/network"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/constraints"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

var ErrInvalidPayload = errors.New("invalid attendance payload")

// Gateway is the single entry point for attendance submissions.
type Gateway struct {
	queue       repository.QueueStore
	remote      Submitter
	signal      network.Status
	invalidator Invalidator
	observer    metrics.SyncObserver
}

func NewGateway(queue repository.QueueStore, remote Submitter, signal network.Status, invalidator Invalidator, observer metrics.SyncObserver) *Gateway {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Gateway{
		queue:       queue,
		remote:      remote,
		signal:      signal,
		invalidator: invalidator,
		observer:    observer,
	}
}

func ValidatePayload(p v1.AttendancePayload) error {
	if p.ClassID <= 0 {
		return fmt.Errorf("%w: classId must be positive", ErrInvalidPayload)
	}
	if _, err := time.Parse(constraints.DateLayout, p.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidPayload)
	}
	if p.SessionType == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidPayload)
	}
	if len(p.Records) == 0 {
		return fmt.Errorf("%w: at least one record is required", ErrInvalidPayload)
	}
	return nil
}

// Save submits p to the remote service, or queues it when the service cannot be
// reached. Application rejections and storage failures are returned to the caller.
func (g *Gateway) Save(ctx context.Context, p v1.AttendancePayload) (*v1.SaveResult, error) {
	if err := ValidatePayload(p); err != nil {
		return nil, err
	}

	if !g.signal.Status() {
		return g.enqueue(ctx, p, remote.ErrOffline)
	}

	p.Method = constraints.MethodOnline
	raw, err := g.remote.SaveAttendance(ctx, p)
	if err != nil {
		if remote.IsNetworkError(err) {
			return g.enqueue(ctx, p, err)
		}
		g.observer.ObserveSave(metrics.OutcomeRejected)
		logger.Info("attendance rejected by remote",
			zap.Int64("class_id", p.ClassID),
			zap.String("date", p.Date),
			zap.Error(err),
		)
		return nil, err
	}

	g.observer.ObserveSave(metrics.OutcomeSuccess)
	if g.invalidator != nil {
		if err := g.invalidator.Invalidate(ctx, p.ClassID); err != nil {
			logger.Warn("failed to invalidate class projection", zap.Int64("class_id", p.ClassID), zap.Error(err))
		}
	}
	return &v1.SaveResult{Remote: raw}, nil
}

func (g *Gateway) enqueue(ctx context.Context, p v1.AttendancePayload, cause error) (*v1.SaveResult, error) {
	// the replay decides the method tag
	p.Method = ""
	id, err := g.queue.Enqueue(ctx, p)
	if err != nil {
		logger.Error("failed to queue attendance", zap.Int64("class_id", p.ClassID), zap.Error(err))
		return nil, err
	}
	g.observer.ObserveSave(metrics.OutcomeQueued)
	logger.Info("attendance queued for sync",
		zap.Int64("id", id),
		zap.Int64("class_id", p.ClassID),
		zap.String("date", p.Date),
		zap.NamedError("cause", cause),
	)
	return &v1.SaveResult{Offline: true, QueuedID: id}, nil
}
