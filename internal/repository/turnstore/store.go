package turnstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// Store persists completed turns and per-session request status in SQLite.
// It is the durable half of session recovery: the event log lives in
// memory, the turn results live here.
type Store struct {
	db *sql.DB
}

// Open creates or opens the turn database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// OpenMemory creates an in-memory turn database (useful for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS search_turns (
    session_id TEXT NOT NULL,
    turn_id INTEGER NOT NULL,
    query TEXT NOT NULL,
    outcome TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (session_id, turn_id)
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON search_turns(session_id, created_at);

CREATE TABLE IF NOT EXISTS search_requests (
    session_id TEXT PRIMARY KEY,
    turn_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    query TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);
`

// SaveTurn stores one completed turn, replacing any previous record for
// the same session and turn id.
func (s *Store) SaveTurn(ctx context.Context, rec domain.TurnRecord) error {
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO search_turns (session_id, turn_id, query, outcome, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TurnID, rec.Query, string(outcome), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert turn %s/%d: %w", rec.SessionID, rec.TurnID, err)
	}
	return nil
}

// Turn returns one persisted turn.
func (s *Store) Turn(ctx context.Context, sessionID string, turnID int) (domain.TurnRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, turn_id, query, outcome, created_at
		FROM search_turns WHERE session_id = ? AND turn_id = ?`,
		sessionID, turnID,
	)
	rec, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TurnRecord{}, fmt.Errorf("%w: %s/%d", domain.ErrTurnNotFound, sessionID, turnID)
		}
		return domain.TurnRecord{}, fmt.Errorf("select turn %s/%d: %w", sessionID, turnID, err)
	}
	return rec, nil
}

// LatestTurn returns the session's most recent persisted turn.
func (s *Store) LatestTurn(ctx context.Context, sessionID string) (domain.TurnRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, turn_id, query, outcome, created_at
		FROM search_turns WHERE session_id = ?
		ORDER BY turn_id DESC LIMIT 1`,
		sessionID,
	)
	rec, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TurnRecord{}, fmt.Errorf("%w: %s", domain.ErrTurnNotFound, sessionID)
		}
		return domain.TurnRecord{}, fmt.Errorf("select latest turn %s: %w", sessionID, err)
	}
	return rec, nil
}

// Turns returns the session's full turn history in order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_id, query, outcome, created_at
		FROM search_turns WHERE session_id = ?
		ORDER BY turn_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select turns %s: %w", sessionID, err)
	}
	defer rows.Close()

	var recs []domain.TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns %s: %w", sessionID, err)
	}
	return recs, nil
}

// SetRequestStatus upserts the session's current request status.
func (s *Store) SetRequestStatus(ctx context.Context, status domain.RequestStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_requests (session_id, turn_id, status, query, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			turn_id = excluded.turn_id,
			status = excluded.status,
			query = excluded.query,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		status.SessionID, status.TurnID, string(status.Status), status.Query, status.Err, status.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert request status %s: %w", status.SessionID, err)
	}
	return nil
}

// RequestStatus returns the session's last recorded request status.
func (s *Store) RequestStatus(ctx context.Context, sessionID string) (domain.RequestStatus, error) {
	var (
		status    domain.RequestStatus
		state     string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, turn_id, status, query, error, updated_at
		FROM search_requests WHERE session_id = ?`,
		sessionID,
	).Scan(&status.SessionID, &status.TurnID, &state, &status.Query, &status.Err, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RequestStatus{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return domain.RequestStatus{}, fmt.Errorf("select request status %s: %w", sessionID, err)
	}
	status.Status = domain.SessionStatus(state)
	status.UpdatedAt = updatedAt
	return status, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (domain.TurnRecord, error) {
	var (
		rec     domain.TurnRecord
		outcome string
	)
	if err := row.Scan(&rec.SessionID, &rec.TurnID, &rec.Query, &outcome, &rec.CreatedAt); err != nil {
		return domain.TurnRecord{}, err
	}
	if err := json.Unmarshal([]byte(outcome), &rec.Outcome); err != nil {
		return domain.TurnRecord{}, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return rec, nil
}
