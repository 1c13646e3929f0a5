package domain

import "time"

// EventType identifies one kind of search progress event.
type EventType string

// Event types emitted during a turn. The ordered sequence, not just the
// final state, is the contract the streaming layer delivers.
const (
	EventStepStart  EventType = "step_start"
	EventStepDone   EventType = "step_done"
	EventStepError  EventType = "step_error"
	EventProgress   EventType = "progress"
	EventRestaurant EventType = "restaurant"
	EventResult     EventType = "result"
	EventError      EventType = "error"
	EventDone       EventType = "done"

	// EventHeartbeat is synthesized for idle subscribers; it is never
	// appended to the log and carries no index of its own.
	EventHeartbeat EventType = "heartbeat"
)

// Terminal reports whether the event closes a subscription.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// SearchEvent is one entry of a session's append-only event log. Index is
// assigned by the log, monotonically from 0. Replayed is set only on copies
// delivered during reconnect replay; the stored event never carries it.
type SearchEvent struct {
	Index    int64          `json:"index"`
	Type     EventType      `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
	Replayed bool           `json:"replayed,omitempty"`
}
