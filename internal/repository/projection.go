package repository

import (
	"context"
	"errors"
	"time"

	"rollcall/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectionInterface interface {
	Get(ctx context.Context, classID int64) (*model.ClassProjection, error)
	Save(ctx context.Context, classID int64, data string) error
	Delete(ctx context.Context, classID int64) error
}

type ProjectionRepository struct {
	db *gorm.DB
}

func NewProjectionRepository(db *gorm.DB) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

// Get returns nil when nothing is cached for the class.
func (r *ProjectionRepository) Get(ctx context.Context, classID int64) (*model.ClassProjection, error) {
	var p model.ClassProjection
	if err := r.db.WithContext(ctx).Where("class_id = ?", classID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("projection get", err)
	}
	return &p, nil
}

func (r *ProjectionRepository) Save(ctx context.Context, classID int64, data string) error {
	p := model.ClassProjection{ClassID: classID, Data: data, FetchedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "fetched_at"}),
	}).Create(&p).Error
	if err != nil {
		return storeErr("projection save", err)
	}
	return nil
}

func (r *ProjectionRepository) Delete(ctx context.Context, classID int64) error {
	if err := r.db.WithContext(ctx).Where("class_id = ?", classID).
		Delete(&model.ClassProjection{}).Error; err != nil {
		return storeErr("projection delete", err)
	}
	return nil
}
