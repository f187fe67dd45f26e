package v1

import "rollcall/pkg/constraints"

// Event is a sync progress notification, streamed to local subscribers.
type Event struct {
	Seq     int64                 `json:"seq"`
	Kind    constraints.EventKind `json:"kind"`
	Current int                   `json:"current,omitempty"`
	Total   int                   `json:"total,omitempty"`
	ID      int64                 `json:"id,omitempty"`
	ClassID int64                 `json:"classId,omitempty"`
	Online  *bool                 `json:"online,omitempty"`
	Result  *SyncResult           `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}
