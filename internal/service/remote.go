package service

import (
	"context"
	"encoding/json"

	v1 "rollcall/pkg/api/v1"
)

// Submitter delivers one attendance payload to the remote service.
type Submitter interface {
	SaveAttendance(ctx context.Context, p v1.AttendancePayload) (json.RawMessage, error)
}

type ResolutionFeed interface {
	FetchResolved(ctx context.Context, since int64) ([]int64, error)
}

type ClassFetcher interface {
	FetchClassAttendance(ctx context.Context, classID int64) (json.RawMessage, error)
}

// Invalidator drops a downstream projection for a class after a confirmed write.
type Invalidator interface {
	Invalidate(ctx context.Context, classID int64) error
}
