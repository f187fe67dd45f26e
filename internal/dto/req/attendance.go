package req

import v1 "rollcall/pkg/api/v1"

type AttendanceRecord struct {
	StudentID int64 `json:"studentId" binding:"required,gt=0"`
	Present   bool  `json:"present"`
}

type SaveAttendanceRequest struct {
	ClassID     int64              `json:"classId" binding:"required,gt=0"`
	Date        string             `json:"date" binding:"required"`
	SessionType string             `json:"type" binding:"required"`
	Records     []AttendanceRecord `json:"records" binding:"required,min=1,dive"`
}

func (r *SaveAttendanceRequest) ToPayload() v1.AttendancePayload {
	records := make([]v1.AttendanceRecord, 0, len(r.Records))
	for _, rec := range r.Records {
		records = append(records, v1.AttendanceRecord{StudentID: rec.StudentID, Present: rec.Present})
	}
	return v1.AttendancePayload{
		ClassID:     r.ClassID,
		Date:        r.Date,
		SessionType: r.SessionType,
		Records:     records,
	}
}

type IDUri struct {
	ID int64 `uri:"id" binding:"required,gt=0"`
}

type GroupUri struct {
	Key string `uri:"key" binding:"required"`
}
