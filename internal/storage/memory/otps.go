package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authflow/internal/otp"
)

type OtpStore struct {
	mu   sync.Mutex
	otps map[uuid.UUID]otp.Otp
}

func NewOtpStore() *OtpStore {
	return &OtpStore{otps: make(map[uuid.UUID]otp.Otp)}
}

func (s *OtpStore) Create(_ context.Context, o *otp.Otp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	stored := *o
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.otps[o.ID] = stored
	return nil
}

func (s *OtpStore) FindActive(_ context.Context, userID uuid.UUID, code string, now time.Time) ([]*otp.Otp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*otp.Otp
	for _, stored := range s.otps {
		if stored.UserID == userID && stored.Code == code && stored.Active(now) {
			o := stored
			found = append(found, &o)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return found, nil
}

func (s *OtpStore) Consume(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.otps[id]
	if !ok || !stored.Active(now) {
		return otp.ErrNotFound
	}
	stored.ConsumedAt = &now
	s.otps[id] = stored
	return nil
}

func (s *OtpStore) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, stored := range s.otps {
		if stored.UserID == userID {
			delete(s.otps, id)
		}
	}
	return nil
}

// All returns every stored code of userID, including consumed and expired ones.
func (s *OtpStore) All(userID uuid.UUID) []otp.Otp {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []otp.Otp
	for _, stored := range s.otps {
		if stored.UserID == userID {
			out = append(out, stored)
		}
	}
	return out
}
