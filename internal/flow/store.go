package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps conversations in memory. Sessions are process-local
// and single-conversation, so a map guarded by a mutex is all the state
// management we need; a per-session lock serializes Advance so each
// conversation sees a strictly ordered input stream.
type SessionStore struct {
	machine *Machine

	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

func NewSessionStore(machine *Machine) *SessionStore {
	return &SessionStore{
		machine:  machine,
		sessions: make(map[uuid.UUID]*sessionEntry),
	}
}

// Create starts a new conversation in the greeting state.
func (st *SessionStore) Create() *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New(),
		State:     StateGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	st.mu.Lock()
	st.sessions[s.ID] = &sessionEntry{session: s}
	st.mu.Unlock()

	return s
}

// Get returns a snapshot of the session's current standing.
func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	entry, err := st.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	snap := *entry.session
	return &snap, nil
}

// Advance feeds one input to the session under its lock.
func (st *SessionStore) Advance(ctx context.Context, id uuid.UUID, in Input) (*Reply, error) {
	entry, err := st.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return st.machine.Advance(ctx, entry.session, in)
}

func (st *SessionStore) entry(id uuid.UUID) (*sessionEntry, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	entry, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}
