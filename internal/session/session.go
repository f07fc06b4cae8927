// Package session tracks conversations across requests. Sessions expire
// by comparison, not removal: the orchestration layer never hard-deletes
// a session row, it just stops resolving to it.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is the session lifetime when the config leaves it unset.
const DefaultTTL = 30 * time.Minute

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session: not found")

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session is one user's conversation window.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Data is a free-form bag for persona and other per-session knobs.
	Data map[string]string
}

// Expired reports whether the session has passed its expiry at the
// given instant.
func (s Session) Expired(at time.Time) bool {
	return at.After(s.ExpiresAt)
}

// Turn is one utterance in a session. Append-only.
type Turn struct {
	SessionID string
	Role      Role
	Content   string

	// Metadata carries per-turn annotations such as the query ID,
	// matched product count, or an error flag.
	Metadata  map[string]string
	CreatedAt time.Time
}

// Store persists sessions and their turns.
type Store interface {
	// GetSession returns the session for id, expired or not. Callers
	// decide whether an expired session is still usable.
	GetSession(ctx context.Context, id string) (Session, error)

	// PutSession inserts or replaces a session by ID.
	PutSession(ctx context.Context, s Session) error

	// AppendTurn appends a turn to its session's history.
	AppendTurn(ctx context.Context, turn Turn) error

	// RecentTurns returns up to limit most-recent turns for the
	// session, newest first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// CountActive returns the number of sessions that have not yet
	// expired. Served by the health endpoint.
	CountActive(ctx context.Context) (int, error)
}

// Manager resolves incoming session IDs to live sessions.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a manager over store. A zero ttl falls back to
// DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Resolve returns a live session for the given ID, creating a fresh one
// when the ID is empty, unknown, or expired. Resolution never fails the
// request: store read errors degrade to a new unsaved session rather
// than an error, and only the inability to mint an ID is fatal.
func (m *Manager) Resolve(ctx context.Context, id, userID string) (Session, bool, error) {
	if id != "" {
		s, err := m.store.GetSession(ctx, id)
		if err == nil && !s.Expired(m.now()) {
			return s, false, nil
		}
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			// Degraded store: continue with a fresh session so the
			// request can still be answered.
			return m.create(ctx, userID, false)
		}
	}
	return m.create(ctx, userID, true)
}

// Touch extends the session's expiry by the configured TTL.
func (m *Manager) Touch(ctx context.Context, s Session) error {
	s.ExpiresAt = m.now().Add(m.ttl)
	return m.store.PutSession(ctx, s)
}

func (m *Manager) create(ctx context.Context, userID string, persist bool) (Session, bool, error) {
	id, err := generateID()
	if err != nil {
		return Session{}, false, err
	}
	now := m.now()
	s := Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Data:      make(map[string]string),
	}
	if persist {
		if err := m.store.PutSession(ctx, s); err != nil {
			// Keep the in-memory session; the conversation just loses
			// continuity across requests.
			return s, true, nil
		}
	}
	return s, true, nil
}

// Append records one turn. Turns are append-only; there is no edit or
// delete path.
func (m *Manager) Append(ctx context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = m.now()
	}
	return m.store.AppendTurn(ctx, turn)
}

// History returns up to limit turns in chronological order, ready for
// prompt construction. The store serves them newest-first; this
// re-reverses.
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	turns, err := m.store.RecentTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// generateID produces a 32-character hex string from 16 random bytes.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("session: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
