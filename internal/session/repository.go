package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/authflow/internal/database"
)

// Repository handles session persistence in Postgres.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new session keyed by the hash of its id
func (r *Repository) Create(ctx context.Context, s *Session) error {
	dbSession := &database.Session{
		TokenHash: HashID(s.ID),
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt,
		IsValid:   s.IsValid,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
	}

	if _, err := r.db.NewInsert().Model(dbSession).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// GetValid returns the session only while is_valid is true. Expiry is the
// caller's check so that the comparison uses the caller's clock.
func (r *Repository) GetValid(ctx context.Context, id string) (*Session, error) {
	dbSession := new(database.Session)
	err := r.db.NewSelect().
		Model(dbSession).
		Where("token_hash = ?", HashID(id)).
		Where("is_valid = ?", true).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &Session{
		ID:        id,
		UserID:    dbSession.UserID,
		ExpiresAt: dbSession.ExpiresAt,
		IsValid:   dbSession.IsValid,
		UserAgent: dbSession.UserAgent,
		CreatedAt: dbSession.CreatedAt,
	}, nil
}

// Invalidate flips is_valid to false. Unknown or already revoked sessions are
// not an error.
func (r *Repository) Invalidate(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*database.Session)(nil)).
		Set("is_valid = ?", false).
		Where("token_hash = ?", HashID(id)).
		Where("is_valid = ?", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session owned by userID
func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*database.Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}
