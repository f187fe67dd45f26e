package v1

// PendingGroup collapses queued submissions for the same class session.
type PendingGroup struct {
	Key         string            `json:"key"`
	ClassID     int64             `json:"classId"`
	Date        string            `json:"date"`
	SessionType string            `json:"type"`
	IDs         []int64           `json:"ids"`
	Duplicate   bool              `json:"duplicate"`
	Failed      bool              `json:"failed"`
	FailedIDs   []int64           `json:"failedIds,omitempty"`
	Latest      AttendancePayload `json:"latest"`
	Timestamp   int64             `json:"timestamp"`
}

type PendingList struct {
	Total  int            `json:"total"`
	Groups []PendingGroup `json:"groups"`
}
