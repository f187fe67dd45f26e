package repository

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/store"
	v1 "rollcall/pkg/api/v1"
	"rollcall/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open(config.StoreConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })
	return db
}

func samplePayload(classID int64) v1.AttendancePayload {
	return v1.AttendancePayload{
		ClassID:     classID,
		Date:        "2026-03-01",
		SessionType: "catechism",
		Records: []v1.AttendanceRecord{
			{StudentID: 1, Present: true},
			{StudentID: 2, Present: false},
		},
	}
}

func TestQueue_EnqueueAndListPending(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))

	id1, err := repo.Enqueue(ctx, samplePayload(1))
	require.NoError(t, err)
	id2, err := repo.Enqueue(ctx, samplePayload(1))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2, "identical payloads are stored separately")

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)
	assert.False(t, pending[0].Synced)
	assert.Nil(t, pending[0].SyncedAt)
	assert.NotZero(t, pending[0].Timestamp)

	p, err := pending[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ClassID)
	assert.Len(t, p.Records, 2)
}

func TestQueue_MarkSynced(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))

	id, err := repo.Enqueue(ctx, samplePayload(3))
	require.NoError(t, err)

	require.NoError(t, repo.MarkSynced(ctx, id))
	require.NoError(t, repo.MarkSynced(ctx, 9999), "absent id is a no-op")

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sub, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, sub.Synced)
	require.NotNil(t, sub.SyncedAt)
	first := *sub.SyncedAt

	// a second mark leaves the original timestamp alone
	repo.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, repo.MarkSynced(ctx, id))
	sub, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, *sub.SyncedAt)
}

func TestQueue_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))

	id, err := repo.Enqueue(ctx, samplePayload(4))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))
	require.NoError(t, repo.Delete(ctx, id))

	sub, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestQueue_IDsNotReused(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))

	id1, err := repo.Enqueue(ctx, samplePayload(5))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id1))

	id2, err := repo.Enqueue(ctx, samplePayload(5))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestQueue_PruneSyncedOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))
	base := time.Now()

	oldID, err := repo.Enqueue(ctx, samplePayload(6))
	require.NoError(t, err)
	freshID, err := repo.Enqueue(ctx, samplePayload(7))
	require.NoError(t, err)
	pendingID, err := repo.Enqueue(ctx, samplePayload(8))
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(-8 * 24 * time.Hour) }
	require.NoError(t, repo.MarkSynced(ctx, oldID))
	repo.now = func() time.Time { return base.Add(-time.Hour) }
	require.NoError(t, repo.MarkSynced(ctx, freshID))

	repo.now = func() time.Time { return base }
	n, err := repo.PruneSyncedOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := repo.Get(ctx, oldID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.Get(ctx, freshID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	stillPending, err := repo.Get(ctx, pendingID)
	require.NoError(t, err)
	assert.NotNil(t, stillPending)
}

func TestQueue_DeleteManyAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(openTestDB(t))

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := repo.Enqueue(ctx, samplePayload(9))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, repo.DeleteMany(ctx, ids[:2]))
	require.NoError(t, repo.DeleteMany(ctx, nil))

	n, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueue_EnqueueFailsLoudly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewQueueRepository(db)
	require.NoError(t, store.Close(db))

	_, err := repo.Enqueue(ctx, samplePayload(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = (&QueueRepository{now: time.Now}).Enqueue(ctx, samplePayload(10))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
