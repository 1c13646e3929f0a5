package contextcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/db"
	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// DefaultTTL is how long an idle conversation survives between turns.
const DefaultTTL = 24 * time.Hour

const keyPrefix = domain.KeyPrefix + "ctx:"

// store is the consumer interface for cached contexts (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Store persists conversation contexts between turns so a restarted
// process can pick up a session where it left off.
type Store struct {
	kv  store
	ttl time.Duration
}

// New creates a context cache. A non-positive ttl falls back to DefaultTTL.
func New(kv store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Save stores the conversation context, refreshing its TTL.
func (s *Store) Save(ctx context.Context, sessionID string, conv *domain.ConversationContext) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	key := contextKey(sessionID)
	if err := s.kv.SetWithTTL(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Load returns the cached context, or ErrSessionNotFound when the session
// is unknown or expired.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ConversationContext, error) {
	key := contextKey(sessionID)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var conv domain.ConversationContext
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal context %s: %w", key, err)
	}
	conv.Restore()
	return &conv, nil
}

// Clear drops the cached context.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	key := contextKey(sessionID)
	if err := s.kv.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func contextKey(sessionID string) string {
	return keyPrefix + sessionID
}
