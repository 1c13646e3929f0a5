package stream

import (
	"context"
	"sync"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// DefaultHeartbeat is the idle interval after which a subscriber receives a
// synthesized heartbeat event.
const DefaultHeartbeat = 15 * time.Second

// Hub owns the per-session event logs. The session map is the only state
// shared across goroutines and is guarded as a whole; each log carries its
// own lock for per-session access.
type Hub struct {
	mu        sync.Mutex
	logs      map[string]*sessionLog
	heartbeat time.Duration
}

// NewHub creates a hub. heartbeat <= 0 selects DefaultHeartbeat.
func NewHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{logs: make(map[string]*sessionLog), heartbeat: heartbeat}
}

// Reset discards any previous log for the session and starts a fresh one
// for the next turn.
func (h *Hub) Reset(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs[sessionID] = newSessionLog()
}

// Emit appends an event to the session's log. Unknown sessions are ignored;
// emitting starts with Reset.
func (h *Hub) Emit(sessionID string, typ domain.EventType, data map[string]any) {
	h.mu.Lock()
	l := h.logs[sessionID]
	h.mu.Unlock()
	if l != nil {
		l.append(typ, data)
	}
}

// Subscribe attaches to the session's current log, replaying from lastIndex
// first. Unknown sessions return ErrSessionNotFound so the caller can fall
// back to durable recovery.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, lastIndex int64) (<-chan domain.SearchEvent, error) {
	h.mu.Lock()
	l := h.logs[sessionID]
	h.mu.Unlock()
	if l == nil {
		return nil, domain.ErrSessionNotFound
	}
	return l.subscribe(ctx, lastIndex, h.heartbeat), nil
}

// LastIndex returns the session log's highest assigned index, -1 when the
// log is empty, and ErrSessionNotFound for unknown sessions.
func (h *Hub) LastIndex(sessionID string) (int64, error) {
	h.mu.Lock()
	l := h.logs[sessionID]
	h.mu.Unlock()
	if l == nil {
		return 0, domain.ErrSessionNotFound
	}
	return l.lastIndex(), nil
}

// Events returns a copy of the session's stored events from the given
// index, used when recovery answers from the in-memory log.
func (h *Hub) Events(sessionID string, from int64) []domain.SearchEvent {
	h.mu.Lock()
	l := h.logs[sessionID]
	h.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.snapshot(from)
}

// Drop removes the session's log, releasing its memory.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.logs, sessionID)
}
