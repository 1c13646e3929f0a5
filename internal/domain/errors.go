package domain

import "errors"

// Sentinel errors shared across usecases and transports.
var (
	// ErrSessionNotFound is returned when a session id is unknown both in
	// memory and in the durable stores.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a new turn arrives while the previous
	// turn for the same session has not reached a terminal state.
	ErrSessionBusy = errors.New("session has a turn in progress")

	// ErrTurnNotFound is returned when a persisted turn is requested that
	// was never written.
	ErrTurnNotFound = errors.New("turn not found")

	// ErrSourceUnavailable marks a total document-source failure, as opposed
	// to an empty result set.
	ErrSourceUnavailable = errors.New("document source unavailable")

	// ErrTaggerUnavailable marks a semantic tagger failure; callers fall back
	// to the legacy single-pass analyzer.
	ErrTaggerUnavailable = errors.New("semantic tagger unavailable")

	// ErrEnrichUnavailable marks a POI provider failure for one shop.
	ErrEnrichUnavailable = errors.New("poi provider unavailable")

	// ErrEmptyQuery is returned when a new session is submitted without text.
	ErrEmptyQuery = errors.New("query is required")
)
