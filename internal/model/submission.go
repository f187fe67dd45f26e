package model

import (
	"encoding/json"

	v1 "rollcall/pkg/api/v1"
)

// QueuedSubmission is an attendance submission waiting for remote confirmation.
// Payload is written once on insert and never rewritten.
type QueuedSubmission struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Payload     string `json:"payload" gorm:"type:text;not null"`
	ClassID     int64  `json:"class_id" gorm:"index:idx_pending_group"`
	Date        string `json:"date" gorm:"size:10;index:idx_pending_group"`
	SessionType string `json:"session_type" gorm:"size:32;index:idx_pending_group"`
	Timestamp   int64  `json:"timestamp" gorm:"not null"` // ms since epoch
	Synced      bool   `json:"synced" gorm:"index;default:false"`
	SyncedAt    *int64 `json:"synced_at"` // ms since epoch
}

func (QueuedSubmission) TableName() string {
	return "pending_submissions"
}

// Decode returns the stored payload without any local-only fields.
func (s *QueuedSubmission) Decode() (v1.AttendancePayload, error) {
	var p v1.AttendancePayload
	err := json.Unmarshal([]byte(s.Payload), &p)
	return p, err
}
