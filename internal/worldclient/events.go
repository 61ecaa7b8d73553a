package worldclient

type EventKind int

const (
	EventDisconnected EventKind = iota + 1
	EventKicked
	EventChat
	EventHealthChanged
	EventPositionChanged
	EventEntityAppeared
	EventEntityMoved
	EventError
)

// Event is one session notification. Only the fields for the kind are set.
type Event struct {
	Kind EventKind

	From string // EventChat
	Text string // EventChat

	Reason string // EventKicked

	Entity Entity // EventEntityAppeared, EventEntityMoved

	Err error // EventError
}
