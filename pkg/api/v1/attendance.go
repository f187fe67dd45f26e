package v1

import (
	"encoding/json"
	"fmt"
)

type AttendanceRecord struct {
	StudentID int64 `json:"studentId"`
	Present   bool  `json:"present"`
}

// AttendancePayload is a single attendance submission for one class session.
type AttendancePayload struct {
	ClassID     int64              `json:"classId"`
	Date        string             `json:"date"`
	SessionType string             `json:"type"`
	Records     []AttendanceRecord `json:"records"`
	Method      string             `json:"method,omitempty"`
}

// GroupKey identifies the class session a payload belongs to.
func (p *AttendancePayload) GroupKey() string {
	return GroupKey(p.ClassID, p.Date, p.SessionType)
}

func GroupKey(classID int64, date, sessionType string) string {
	return fmt.Sprintf("%d|%s|%s", classID, date, sessionType)
}

func (p *AttendancePayload) ToJSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		panic("rollcall payload serialization failed" + err.Error())
	}
	return string(b)
}

// SaveResult is what the submission gateway hands back to callers.
type SaveResult struct {
	Offline  bool            `json:"offline"`
	QueuedID int64           `json:"queuedId,omitempty"`
	Remote   json.RawMessage `json:"remote,omitempty"`
}

type SyncError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

type SyncResult struct {
	Skipped bool        `json:"skipped,omitempty"`
	Offline bool        `json:"offline,omitempty"`
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []SyncError `json:"errors,omitempty"`
}

// ErrorLogRecord is sent to the error reporting sink when a replay fails.
type ErrorLogRecord struct {
	ClassID      int64              `json:"classId"`
	Date         string             `json:"date"`
	SessionType  string             `json:"sessionType"`
	Error        string             `json:"error"`
	SubmissionID int64              `json:"submissionId"`
	Online       bool               `json:"online"`
	Records      []AttendanceRecord `json:"records"`
	Actor        string             `json:"actor,omitempty"`
}
