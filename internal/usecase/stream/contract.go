package stream

import (
	"context"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// TurnRunner executes one conversation turn, emitting progress through the
// provided callback. All failures come back as outcome data.
type TurnRunner interface {
	RunTurn(ctx context.Context, conv *domain.ConversationContext, input string, emit func(domain.EventType, map[string]any)) domain.SearchOutcome
}

// ContextStore is the short-TTL cache for conversation contexts, keyed by
// session id. Load returns db.ErrKeyNotFound-wrapping errors for unknown
// sessions.
type ContextStore interface {
	Save(ctx context.Context, sessionID string, conv *domain.ConversationContext) error
	Load(ctx context.Context, sessionID string) (*domain.ConversationContext, error)
	Clear(ctx context.Context, sessionID string) error
}

// TurnStore is the relational store for turn-indexed results and request
// status records; it is the system of record for recovery after a restart.
type TurnStore interface {
	SaveTurn(ctx context.Context, rec domain.TurnRecord) error
	Turn(ctx context.Context, sessionID string, turnID int) (domain.TurnRecord, error)
	LatestTurn(ctx context.Context, sessionID string) (domain.TurnRecord, error)
	Turns(ctx context.Context, sessionID string) ([]domain.TurnRecord, error)
	SetRequestStatus(ctx context.Context, status domain.RequestStatus) error
	RequestStatus(ctx context.Context, sessionID string) (domain.RequestStatus, error)
}
