// Package memory provides in-process stores with the same contracts as the
// Postgres and Redis repositories. Used by tests and APP_STORE=memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/user"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*user.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*user.User)}
}

func (s *UserStore) Create(_ context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := cloneUser(u)
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.Email = user.NormalizeEmail(created.Email)
	if !created.HasPassword() && !created.HasOAuth() {
		return nil, user.ErrMissingAuthMethod
	}

	for _, existing := range s.users {
		switch {
		case existing.ID == created.ID:
			return nil, user.ErrDuplicateEmail
		case existing.Email == created.Email:
			return nil, user.ErrDuplicateEmail
		case existing.Username == created.Username:
			return nil, user.ErrDuplicateUsername
		case created.HasOAuth() && existing.HasOAuth() && *existing.OAuthID == *created.OAuthID:
			return nil, user.ErrDuplicateOAuthID
		}
	}

	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	s.users[created.ID] = created
	return cloneUser(created), nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	return s.find(func(u *user.User) bool { return u.Email == email })
}

func (s *UserStore) GetByOAuthID(_ context.Context, oauthID string) (*user.User, error) {
	return s.find(func(u *user.User) bool { return u.HasOAuth() && *u.OAuthID == oauthID })
}

func (s *UserStore) find(match func(*user.User) bool) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *UserStore) LinkOAuth(_ context.Context, id uuid.UUID, oauthID string, profile user.Profile, emailVerified bool) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if u.HasOAuth() && *u.OAuthID != oauthID {
		return nil, user.ErrDuplicateOAuthID
	}
	for _, other := range s.users {
		if other.ID != id && other.HasOAuth() && *other.OAuthID == oauthID {
			return nil, user.ErrDuplicateOAuthID
		}
	}

	u.OAuthID = &oauthID
	filled := u.Profile().FillEmpty(profile)
	u.FirstName, u.LastName, u.Picture = filled.FirstName, filled.LastName, filled.Picture
	if !u.EmailVerified {
		u.PasswordHash = nil
	}
	u.EmailVerified = u.EmailVerified || emailVerified
	u.UpdatedAt = time.Now()
	return cloneUser(u), nil
}

func (s *UserStore) MarkEmailAsVerified(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(u *user.User) { u.EmailVerified = true })
}

func (s *UserStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return s.update(id, func(u *user.User) { u.PasswordHash = &passwordHash })
}

func (s *UserStore) update(id uuid.UUID, fn func(*user.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (s *UserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Count returns the number of stored users.
func (s *UserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func cloneUser(u *user.User) *user.User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.OAuthID != nil {
		o := *u.OAuthID
		c.OAuthID = &o
	}
	return &c
}
