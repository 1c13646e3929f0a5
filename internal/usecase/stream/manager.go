package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// session is one conversation's in-memory state. The conversation context
// is touched only by the single in-flight turn goroutine; the record and
// outcome are guarded by the manager lock.
type session struct {
	record  domain.SessionRecord
	conv    *domain.ConversationContext
	outcome *domain.SearchOutcome
}

// TurnRef identifies an accepted turn.
type TurnRef struct {
	SessionID string `json:"session_id"`
	TurnID    int    `json:"turn_id"`
}

// RecoveryInfo answers "what happened to this session": live subscribe
// hints while loading, the final outcome when completed, or what the
// durable records still know after a restart.
type RecoveryInfo struct {
	SessionID    string                `json:"session_id"`
	Status       domain.SessionStatus  `json:"status"`
	TurnID       int                   `json:"turn_id,omitempty"`
	LastIndex    int64                 `json:"last_index"`
	CanSubscribe bool                  `json:"can_subscribe"`
	Outcome      *domain.SearchOutcome `json:"outcome,omitempty"`
	Interrupted  bool                  `json:"interrupted,omitempty"`
	Err          string                `json:"error,omitempty"`
}

// Manager owns the session registry: it serializes turns per session,
// bridges the orchestrator's events into the hub, and writes the durable
// records recovery depends on. The durable stores are written only after
// the in-memory computation for a turn fully succeeded.
type Manager struct {
	hub      *Hub
	runner   TurnRunner
	contexts ContextStore
	turns    TurnStore
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates the session manager. Both stores are optional; without
// them the manager still works but recovery is limited to process memory.
func NewManager(hub *Hub, runner TurnRunner, contexts ContextStore, turns TurnStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		hub:      hub,
		runner:   runner,
		contexts: contexts,
		turns:    turns,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	return m
}

// SubmitTurn accepts one user turn. An empty session id starts a new
// session; a turn for a session whose previous turn has not reached a
// terminal state is rejected with ErrSessionBusy. The turn itself runs in
// the background and reports through the event stream.
func (m *Manager) SubmitTurn(ctx context.Context, sessionID, text string) (TurnRef, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnRef{}, domain.ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &session{
			record: domain.SessionRecord{
				ID:        sessionID,
				Status:    domain.StatusIdle,
				CreatedAt: time.Now().UTC(),
			},
		}
		m.sessions[sessionID] = sess
	}
	if sess.record.Status == domain.StatusLoading {
		m.mu.Unlock()
		return TurnRef{}, fmt.Errorf("%w: session %s", domain.ErrSessionBusy, sessionID)
	}
	sess.record.Status = domain.StatusLoading
	sess.record.TurnID++
	sess.record.Query = text
	sess.record.Err = ""
	turnID := sess.record.TurnID
	m.mu.Unlock()

	m.hub.Reset(sessionID)
	go m.runTurn(sessionID, turnID, text)

	return TurnRef{SessionID: sessionID, TurnID: turnID}, nil
}

// runTurn drives one turn to a terminal state. Nothing here is allowed to
// crash the process; a panic becomes a session error like any other.
func (m *Manager) runTurn(sessionID string, turnID int, text string) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("turn panicked",
				zap.String("session_id", sessionID),
				zap.Int("turn_id", turnID),
				zap.Any("panic", r),
			)
			m.finishError(ctx, sessionID, turnID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	m.setRequestStatus(ctx, sessionID, turnID, domain.StatusLoading, text, "")

	conv := m.conversation(ctx, sessionID)
	emit := func(typ domain.EventType, data map[string]any) {
		m.hub.Emit(sessionID, typ, data)
	}

	outcome := m.runner.RunTurn(ctx, conv, text, emit)

	if outcome.Status == domain.OutcomeError {
		m.finishError(ctx, sessionID, turnID, outcome.ErrorMessage)
		return
	}

	m.hub.Emit(sessionID, domain.EventResult, map[string]any{
		"summary":        outcome.Summary,
		"count":          len(outcome.Recommendations),
		"filtered_count": outcome.FilteredCount,
	})

	// Durable records first, terminal event last: a subscriber that saw
	// "done" can rely on the turn being recoverable.
	if m.turns != nil {
		err := m.turns.SaveTurn(ctx, domain.TurnRecord{
			SessionID: sessionID,
			TurnID:    turnID,
			Query:     text,
			Outcome:   outcome,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			m.logger.Warn("failed to persist turn", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	m.setRequestStatus(ctx, sessionID, turnID, domain.StatusCompleted, text, "")
	if m.contexts != nil {
		if err := m.contexts.Save(ctx, sessionID, conv); err != nil {
			m.logger.Warn("failed to persist context", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	m.mu.Lock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.record.Status = domain.StatusCompleted
		sess.outcome = &outcome
	}
	m.mu.Unlock()

	m.hub.Emit(sessionID, domain.EventDone, nil)
}

func (m *Manager) finishError(ctx context.Context, sessionID string, turnID int, msg string) {
	m.mu.Lock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.record.Status = domain.StatusError
		sess.record.Err = msg
	}
	m.mu.Unlock()

	m.setRequestStatus(ctx, sessionID, turnID, domain.StatusError, "", msg)
	m.hub.Emit(sessionID, domain.EventError, map[string]any{"message": msg})
}

// conversation returns the session's working context, restoring it from
// the context cache after a restart, or starting fresh.
func (m *Manager) conversation(ctx context.Context, sessionID string) *domain.ConversationContext {
	m.mu.Lock()
	sess := m.sessions[sessionID]
	if sess != nil && sess.conv != nil {
		conv := sess.conv
		m.mu.Unlock()
		return conv
	}
	m.mu.Unlock()

	conv := domain.NewConversationContext()
	if m.contexts != nil {
		if cached, err := m.contexts.Load(ctx, sessionID); err == nil && cached != nil {
			conv = cached
		}
	}
	// Cache expired but durable turns survive: rebuild the shop superset
	// from the first persisted turn, which is the reference set later
	// filters narrow from. The latest turn only advances the turn counter;
	// taking its shops would bake a narrowing follow-up into the superset.
	if conv.TurnCount == 0 && m.turns != nil {
		if latest, err := m.turns.LatestTurn(ctx, sessionID); err == nil {
			first := latest
			if latest.TurnID > 1 {
				if rec, err := m.turns.Turn(ctx, sessionID, 1); err == nil {
					first = rec
				}
			}
			conv.AddShops(first.Outcome.Recommendations)
			conv.TurnCount = latest.TurnID
			m.logger.Info("conversation rebuilt from turn store",
				zap.String("session_id", sessionID),
				zap.Int("turn_id", latest.TurnID),
			)
		}
	}

	m.mu.Lock()
	if sess = m.sessions[sessionID]; sess != nil {
		sess.conv = conv
	}
	m.mu.Unlock()
	return conv
}

func (m *Manager) setRequestStatus(ctx context.Context, sessionID string, turnID int, status domain.SessionStatus, query, errMsg string) {
	if m.turns == nil {
		return
	}
	err := m.turns.SetRequestStatus(ctx, domain.RequestStatus{
		SessionID: sessionID,
		TurnID:    turnID,
		Status:    status,
		Query:     query,
		Err:       errMsg,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("failed to persist request status", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Subscribe attaches to the session's live event stream, replaying from
// lastIndex.
func (m *Manager) Subscribe(ctx context.Context, sessionID string, lastIndex int64) (<-chan domain.SearchEvent, error) {
	return m.hub.Subscribe(ctx, sessionID, lastIndex)
}

// Recover reports what is known about a session, checking in order: the
// in-memory record, the durable turn store, the durable request-status
// record, and finally ErrSessionNotFound.
func (m *Manager) Recover(ctx context.Context, sessionID string) (RecoveryInfo, error) {
	m.mu.Lock()
	sess := m.sessions[sessionID]
	var (
		record  domain.SessionRecord
		outcome *domain.SearchOutcome
	)
	if sess != nil {
		record = sess.record
		outcome = sess.outcome
	}
	m.mu.Unlock()

	if sess != nil && record.Status != domain.StatusIdle {
		info := RecoveryInfo{
			SessionID: sessionID,
			Status:    record.Status,
			TurnID:    record.TurnID,
			LastIndex: -1,
		}
		switch record.Status {
		case domain.StatusLoading:
			if idx, err := m.hub.LastIndex(sessionID); err == nil {
				info.LastIndex = idx
			}
			info.CanSubscribe = true
		case domain.StatusCompleted:
			info.Outcome = outcome
		case domain.StatusError:
			info.Err = record.Err
		}
		return info, nil
	}

	if m.turns != nil {
		if rec, err := m.turns.LatestTurn(ctx, sessionID); err == nil {
			return RecoveryInfo{
				SessionID: sessionID,
				Status:    domain.StatusCompleted,
				TurnID:    rec.TurnID,
				LastIndex: -1,
				Outcome:   &rec.Outcome,
			}, nil
		} else if !errors.Is(err, domain.ErrTurnNotFound) {
			return RecoveryInfo{}, err
		}

		if status, err := m.turns.RequestStatus(ctx, sessionID); err == nil {
			info := RecoveryInfo{
				SessionID: sessionID,
				Status:    status.Status,
				TurnID:    status.TurnID,
				LastIndex: -1,
				Err:       status.Err,
			}
			// A loading record with no persisted result means the process
			// died mid-turn.
			if status.Status == domain.StatusLoading {
				info.Interrupted = true
			}
			return info, nil
		} else if !errors.Is(err, domain.ErrSessionNotFound) {
			return RecoveryInfo{}, err
		}
	}

	return RecoveryInfo{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
}

// Turn returns one durably persisted turn.
func (m *Manager) Turn(ctx context.Context, sessionID string, turnID int) (domain.TurnRecord, error) {
	if m.turns == nil {
		return domain.TurnRecord{}, domain.ErrTurnNotFound
	}
	return m.turns.Turn(ctx, sessionID, turnID)
}

// Turns returns a session's full persisted turn history.
func (m *Manager) Turns(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	if m.turns == nil {
		return nil, nil
	}
	return m.turns.Turns(ctx, sessionID)
}

// Reset discards the session's in-memory context, event log, and cached
// context. It is the only way to cancel a pending context short of letting
// the turn finish.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.hub.Drop(sessionID)
	if m.contexts != nil {
		if err := m.contexts.Clear(ctx, sessionID); err != nil {
			return fmt.Errorf("clear cached context: %w", err)
		}
	}
	return nil
}
