package constraints

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
	EventNetwork  EventKind = "network"
	EventPing     EventKind = "ping"
)

// Method tags sent with a submission so the server can tell live saves from replays.
const (
	MethodOnline      = "online"
	MethodOfflineSync = "offline-sync"
)

const (
	SessionCatechism = "catechism"
	SessionMass      = "mass"
	SessionRetreat   = "retreat"
)

const DateLayout = "2006-01-02"
