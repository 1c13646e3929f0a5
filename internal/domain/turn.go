package domain

import "time"

// TurnRecord is the durable snapshot of one completed turn. Turn ids are
// per-session and monotonically increasing from 1; the first turn's record
// doubles as the reference superset that later narrowing filters start from.
type TurnRecord struct {
	SessionID string        `json:"session_id"`
	TurnID    int           `json:"turn_id"`
	Query     string        `json:"query"`
	Outcome   SearchOutcome `json:"outcome"`
	CreatedAt time.Time     `json:"created_at"`
}

// RequestStatus is the durable status record for one submitted turn,
// written independently of the result so an interrupted run is still
// diagnosable after a restart.
type RequestStatus struct {
	SessionID string        `json:"session_id"`
	TurnID    int           `json:"turn_id"`
	Status    SessionStatus `json:"status"`
	Query     string        `json:"query,omitempty"`
	Err       string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}
