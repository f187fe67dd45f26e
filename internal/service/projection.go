package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"rollcall/internal/network"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	"rollcall/pkg/logger"

	"go.uber.org/zap"
)

var ErrProjectionUnavailable = errors.New("class attendance unavailable offline")

// Projection is a class attendance view, possibly served from the local cache.
type Projection struct {
	ClassID   int64           `json:"classId"`
	Data      json.RawMessage `json:"data"`
	Stale     bool            `json:"stale"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// ProjectionCache is a read-through cache of the remote class attendance view.
type ProjectionCache struct {
	repo    repository.ProjectionInterface
	fetcher ClassFetcher
	signal  network.Status
}

func NewProjectionCache(repo repository.ProjectionInterface, fetcher ClassFetcher, signal network.Status) *ProjectionCache {
	return &ProjectionCache{repo: repo, fetcher: fetcher, signal: signal}
}

func (c *ProjectionCache) Get(ctx context.Context, classID int64) (*Projection, error) {
	var fetchErr error
	if c.signal.Status() {
		data, err := c.fetcher.FetchClassAttendance(ctx, classID)
		fetchErr = err
		if err == nil {
			if err := c.repo.Save(ctx, classID, string(data)); err != nil {
				logger.Warn("failed to cache class projection", zap.Int64("class_id", classID), zap.Error(err))
			}
			return &Projection{ClassID: classID, Data: data, FetchedAt: time.Now()}, nil
		}
		logger.Warn("class fetch failed, serving cache", zap.Int64("class_id", classID), zap.Error(err))
	}

	cached, err := c.repo.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		var apiErr *remote.APIError
		if errors.As(fetchErr, &apiErr) {
			return nil, fetchErr
		}
		return nil, ErrProjectionUnavailable
	}
	return &Projection{
		ClassID:   classID,
		Data:      json.RawMessage(cached.Data),
		Stale:     true,
		FetchedAt: cached.FetchedAt,
	}, nil
}

func (c *ProjectionCache) Invalidate(ctx context.Context, classID int64) error {
	return c.repo.Delete(ctx, classID)
}
