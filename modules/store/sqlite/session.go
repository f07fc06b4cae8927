package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuppalabs/cuppa/internal/session"
)

// SessionStore implements session.Store backed by SQLite. Turns are
// append-only with a per-session sequence number.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// GetSession returns the session for id, expired or not.
func (s *SessionStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		sess         session.Session
		dataJSON     string
		createdAtStr string
		expiresAtMs  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, data, created_at, expires_at
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &dataJSON, &createdAtStr, &expiresAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite: get session: %w", err)
	}

	if dataJSON != "" && dataJSON != "{}" {
		if err := json.Unmarshal([]byte(dataJSON), &sess.Data); err != nil {
			return session.Session{}, fmt.Errorf("sqlite: unmarshal session data: %w", err)
		}
	}
	if createdAtStr != "" {
		t, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return session.Session{}, fmt.Errorf("sqlite: parse session created_at: %w", err)
		}
		sess.CreatedAt = t
	}
	sess.ExpiresAt = time.UnixMilli(expiresAtMs)

	return sess, nil
}

// PutSession inserts or replaces a session by ID.
func (s *SessionStore) PutSession(ctx context.Context, sess session.Session) error {
	dataJSON, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("sqlite: marshal session data: %w", err)
	}

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		sess.ID, sess.UserID, string(dataJSON),
		createdAt.Format(time.RFC3339Nano), sess.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put session: %w", err)
	}
	return nil
}

// AppendTurn appends a turn to its session's history.
func (s *SessionStore) AppendTurn(ctx context.Context, turn session.Turn) error {
	metaJSON, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal turn metadata: %w", err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (session_id, seq, role, content, metadata, created_at)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM conversation_turns WHERE session_id = ?), 0) + 1,
		        ?, ?, ?, ?)`,
		turn.SessionID, turn.SessionID,
		string(turn.Role), turn.Content, string(metaJSON),
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: append turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit most-recent turns for the session,
// newest first.
func (s *SessionStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as "no limit".
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, role, content, metadata, created_at
		FROM conversation_turns
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Turn
	for rows.Next() {
		var (
			turn         session.Turn
			role         string
			metaJSON     string
			createdAtStr string
		)
		if err := rows.Scan(&turn.SessionID, &role, &turn.Content, &metaJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		turn.Role = session.Role(role)
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &turn.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal turn metadata: %w", err)
			}
		}
		if createdAtStr != "" {
			t, err := time.Parse(time.RFC3339Nano, createdAtStr)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse turn created_at: %w", err)
			}
			turn.CreatedAt = t
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent turns rows: %w", err)
	}

	return out, nil
}

// CountActive returns the number of unexpired sessions.
func (s *SessionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE expires_at > ?", s.now().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count sessions: %w", err)
	}
	return n, nil
}

// SweepExpired removes expired sessions along with their turns and
// reports how many sessions were dropped.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep sessions begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := s.now().UnixMilli()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_turns WHERE session_id IN
			(SELECT id FROM sessions WHERE expires_at <= ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("sqlite: sweep turns: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep sessions rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: sweep sessions commit: %w", err)
	}
	return n, nil
}
