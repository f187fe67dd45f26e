package model

import "time"

// ClassProjection caches the remote attendance view of a class for offline reads.
type ClassProjection struct {
	ClassID   int64     `json:"class_id" gorm:"primaryKey;autoIncrement:false"`
	Data      string    `json:"data" gorm:"type:text"`
	FetchedAt time.Time `json:"fetched_at" gorm:"index"`
}
