package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/model"
	v1 "rollcall/pkg/api/v1"

	"gorm.io/gorm"
)

// ErrStoreUnavailable wraps every failure of the durable store.
var ErrStoreUnavailable = errors.New("local store unavailable")

// QueueStore is the durable queue of not-yet-confirmed attendance submissions.
type QueueStore interface {
	Enqueue(ctx context.Context, payload v1.AttendancePayload) (int64, error)
	ListPending(ctx context.Context) ([]model.QueuedSubmission, error)
	MarkSynced(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) error
	PruneSyncedOlderThan(ctx context.Context, age time.Duration) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

type QueueRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db, now: time.Now}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func (r *QueueRepository) Enqueue(ctx context.Context, payload v1.AttendancePayload) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("enqueue: %w: store not initialized", ErrStoreUnavailable)
	}
	sub := &model.QueuedSubmission{
		Payload:     payload.ToJSON(),
		ClassID:     payload.ClassID,
		Date:        payload.Date,
		SessionType: payload.SessionType,
		Timestamp:   r.now().UnixMilli(),
		Synced:      false,
	}
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return 0, storeErr("enqueue", err)
	}
	return sub.ID, nil
}

// ListPending returns unsynced entries in insertion order.
func (r *QueueRepository) ListPending(ctx context.Context) ([]model.QueuedSubmission, error) {
	var subs []model.QueuedSubmission
	if err := r.db.WithContext(ctx).Where("synced = ?", false).
		Order("id ASC").Find(&subs).Error; err != nil {
		return nil, storeErr("list pending", err)
	}
	return subs, nil
}

func (r *QueueRepository) Get(ctx context.Context, id int64) (*model.QueuedSubmission, error) {
	var sub model.QueuedSubmission
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", err)
	}
	return &sub, nil
}

// MarkSynced flips an entry to synced once; absent or already synced ids are left alone.
func (r *QueueRepository) MarkSynced(ctx context.Context, id int64) error {
	now := r.now().UnixMilli()
	err := r.db.WithContext(ctx).Model(&model.QueuedSubmission{}).
		Where("id = ? AND synced = ?", id, false).
		Updates(map[string]any{
			"synced":    true,
			"synced_at": now,
		}).Error
	if err != nil {
		return storeErr("mark synced", err)
	}
	return nil
}

func (r *QueueRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&model.QueuedSubmission{}, id).Error; err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func (r *QueueRepository) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).
		Delete(&model.QueuedSubmission{}).Error; err != nil {
		return storeErr("delete many", err)
	}
	return nil
}

func (r *QueueRepository) PruneSyncedOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().Add(-age).UnixMilli()
	res := r.db.WithContext(ctx).
		Where("synced = ? AND synced_at IS NOT NULL AND synced_at < ?", true, cutoff).
		Delete(&model.QueuedSubmission{})
	if res.Error != nil {
		return 0, storeErr("prune", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *QueueRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.QueuedSubmission{}).
		Where("synced = ?", false).Count(&n).Error; err != nil {
		return 0, storeErr("count pending", err)
	}
	return n, nil
}

func (r *QueueRepository) WithTx(tx *gorm.DB) *QueueRepository {
	return &QueueRepository{db: tx, now: r.now}
}
