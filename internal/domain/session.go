package domain

import "time"

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

// Session lifecycle: idle -> loading -> {completed | error}. A follow-up
// turn re-enters loading without resetting accumulated context.
const (
	StatusIdle      SessionStatus = "idle"
	StatusLoading   SessionStatus = "loading"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether the status allows accepting a new turn.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SessionRecord is the in-memory record for one active conversation.
// Status transitions are the only mutation.
type SessionRecord struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	TurnID    int           `json:"turn_id"`
	Query     string        `json:"query,omitempty"`
	Err       string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// OutcomeStatus is the terminal status of one processed turn.
type OutcomeStatus string

// Turn outcome statuses.
const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeClarify OutcomeStatus = "clarify"
	OutcomeError   OutcomeStatus = "error"
)

// SearchOutcome is the result of one turn: either recommendations, a
// clarification request, or an error reported as data.
type SearchOutcome struct {
	Status           OutcomeStatus `json:"status"`
	Recommendations  []*Restaurant `json:"recommendations,omitempty"`
	FilteredCount    int           `json:"filtered_count,omitempty"`
	ClarifyQuestions []string      `json:"clarify_questions,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	Summary          string        `json:"summary,omitempty"`
}
