package metrics

import "time"

type HubObserver interface {
	IncSubscribers()
	DecSubscribers()
	RecordPush()
	RecordDrop()
}

// SyncObserver receives orchestrator and gateway outcomes.
type SyncObserver interface {
	ObserveRun(outcome string, d time.Duration)
	ObserveDispatch(outcome string)
	ObserveSave(outcome string)
	SetPending(n int64)
	SetOnline(online bool)
}

// Run outcomes.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunOffline   = "offline"
	RunFailed    = "failed"
)

// Dispatch and save outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeNetwork  = "network"
	OutcomeQueued   = "queued"
)

type Nop struct{}

func (Nop) IncSubscribers()                  {}
func (Nop) DecSubscribers()                  {}
func (Nop) RecordPush()                      {}
func (Nop) RecordDrop()                      {}
func (Nop) ObserveRun(string, time.Duration) {}
func (Nop) ObserveDispatch(string)           {}
func (Nop) ObserveSave(string)               {}
func (Nop) SetPending(int64)                 {}
func (Nop) SetOnline(bool)                   {}
