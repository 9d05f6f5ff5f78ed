package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/authflow/internal/database"
)

// Repository handles OTP persistence in Postgres.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a freshly mailed code
func (r *Repository) Create(ctx context.Context, o *Otp) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	row := &database.Otp{
		ID:        o.ID,
		UserID:    o.UserID,
		Code:      o.Code,
		Purpose:   string(o.Purpose),
		ExpiresAt: o.ExpiresAt,
		MailID:    o.MailID,
	}
	if !o.CreatedAt.IsZero() {
		row.CreatedAt = o.CreatedAt
	}

	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// FindActive returns every unconsumed, unexpired code of userID equal to code,
// whatever its purpose.
func (r *Repository) FindActive(ctx context.Context, userID uuid.UUID, code string, now time.Time) ([]*Otp, error) {
	var rows []database.Otp
	err := r.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("code = ?", code).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}

	otps := make([]*Otp, 0, len(rows))
	for i := range rows {
		otps = append(otps, mapDBOtpToModel(&rows[i]))
	}
	return otps, nil
}

// Consume marks the code used. Only one caller can win; the others get ErrNotFound.
func (r *Repository) Consume(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Otp)(nil)).
		Set("consumed_at = ?", now).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUser removes every code owned by userID
func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*database.Otp)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user otps: %w", err)
	}
	return nil
}

func mapDBOtpToModel(row *database.Otp) *Otp {
	return &Otp{
		ID:         row.ID,
		UserID:     row.UserID,
		Code:       row.Code,
		Purpose:    Purpose(row.Purpose),
		ExpiresAt:  row.ExpiresAt,
		MailID:     row.MailID,
		ConsumedAt: row.ConsumedAt,
		CreatedAt:  row.CreatedAt,
	}
}
