package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"rollcall/internal/config"
	"rollcall/internal/network"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	"rollcall/internal/store"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

// fakeRemote answers per class id; classes without a scripted answer succeed.
type fakeRemote struct {
	mu       sync.Mutex
	answers  map[int64]error
	calls    []v1.AttendancePayload
	block    chan struct{}
	resolved [][]int64
	feedErr  error
	polls    []int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{answers: make(map[int64]error)}
}

func (f *fakeRemote) SaveAttendance(ctx context.Context, p v1.AttendancePayload) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	err := f.answers[p.ClassID]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"ok":true,"classId":%d}`, p.ClassID)), nil
}

func (f *fakeRemote) FetchResolved(_ context.Context, since int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, since)
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	if len(f.resolved) == 0 {
		return []int64{}, nil
	}
	ids := f.resolved[0]
	f.resolved = f.resolved[1:]
	return ids, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRemote) calledClasses() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.ClassID)
	}
	return out
}

type captureReporter struct {
	mu   sync.Mutex
	recs []v1.ErrorLogRecord
}

func (c *captureReporter) Report(_ context.Context, rec v1.ErrorLogRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureReporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

type countingInvalidator struct {
	mu      sync.Mutex
	classes []int64
}

func (c *countingInvalidator) Invalidate(_ context.Context, classID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes = append(c.classes, classID)
	return nil
}

var errTimeout = &remote.NetworkError{Op: "save attendance", Err: context.DeadlineExceeded}

func rejection(msg string) error {
	return &remote.APIError{Status: 422, Message: msg}
}

type harness struct {
	db       *gorm.DB
	queue    *repository.QueueRepository
	kv       *repository.SQLKV
	failed   *FailedSet
	remote   *fakeRemote
	signal   *network.Signal
	reporter *captureReporter
	inval    *countingInvalidator
	orch     *Orchestrator
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	db, err := store.Open(config.StoreConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	h := &harness{
		db:       db,
		queue:    repository.NewQueueRepository(db),
		kv:       repository.NewSQLKV(db),
		remote:   newFakeRemote(),
		signal:   network.NewSignal(online),
		reporter: &captureReporter{},
		inval:    &countingInvalidator{},
	}
	h.failed = NewFailedSet(h.kv, FailedSetKey)
	h.orch = NewOrchestrator(OrchestratorDeps{
		Queue:       h.queue,
		Failed:      h.failed,
		Settings:    h.kv,
		Remote:      h.remote,
		Feed:        h.remote,
		Signal:      h.signal,
		Reporter:    h.reporter,
		Invalidator: h.inval,
	}, config.SyncConfig{})
	return h
}

func payload(classID int64) v1.AttendancePayload {
	return v1.AttendancePayload{
		ClassID:     classID,
		Date:        "2026-05-10",
		SessionType: "catechism",
		Records:     []v1.AttendanceRecord{{StudentID: 100 + classID, Present: true}},
	}
}

func (h *harness) enqueue(t *testing.T, classID int64) int64 {
	t.Helper()
	id, err := h.queue.Enqueue(context.Background(), payload(classID))
	require.NoError(t, err)
	return id
}

func (h *harness) pendingIDs(t *testing.T) []int64 {
	t.Helper()
	subs, err := h.queue.ListPending(context.Background())
	require.NoError(t, err)
	ids := make([]int64, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

// brokenQueue fails every call.
type brokenQueue struct {
	repository.QueueStore
}

var errDiskFull = fmt.Errorf("enqueue: %w: disk full", repository.ErrStoreUnavailable)

func (brokenQueue) Enqueue(context.Context, v1.AttendancePayload) (int64, error) {
	return 0, errDiskFull
}

// flakyMarkQueue fails the next `fails` MarkSynced calls.
type flakyMarkQueue struct {
	*repository.QueueRepository
	mu    sync.Mutex
	fails int
}

func (q *flakyMarkQueue) MarkSynced(ctx context.Context, id int64) error {
	q.mu.Lock()
	if q.fails > 0 {
		q.fails--
		q.mu.Unlock()
		return fmt.Errorf("mark synced: %w: database is locked", repository.ErrStoreUnavailable)
	}
	q.mu.Unlock()
	return q.QueueRepository.MarkSynced(ctx, id)
}
