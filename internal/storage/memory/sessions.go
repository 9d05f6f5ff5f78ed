package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/session"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session // keyed by session.HashID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]session.Session)}
}

func (s *SessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	stored.ID = ""
	s.sessions[session.HashID(sess.ID)] = stored
	return nil
}

func (s *SessionStore) GetValid(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[session.HashID(id)]
	if !ok || !stored.IsValid {
		return nil, session.ErrNotFound
	}
	stored.ID = id
	return &stored, nil
}

func (s *SessionStore) Invalidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := session.HashID(id)
	if stored, ok := s.sessions[key]; ok {
		stored.IsValid = false
		s.sessions[key] = stored
	}
	return nil
}

func (s *SessionStore) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stored := range s.sessions {
		if stored.UserID == userID {
			delete(s.sessions, key)
		}
	}
	return nil
}

// Snapshot returns the stored row for a raw session id, valid or not.
func (s *SessionStore) Snapshot(id string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[session.HashID(id)]
	stored.ID = id
	return stored, ok
}

// CountByUser returns how many sessions userID owns.
func (s *SessionStore) CountByUser(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, stored := range s.sessions {
		if stored.UserID == userID {
			n++
		}
	}
	return n
}
