package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/authflow/internal/database"
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// Repository handles user persistence in Postgres.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user. Uniqueness is enforced by the database so that
// concurrent signups for the same email cannot both succeed.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	id := u.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	dbUser := &database.User{
		ID:            id,
		Email:         NormalizeEmail(u.Email),
		Username:      u.Username,
		PasswordHash:  u.PasswordHash,
		OAuthID:       u.OAuthID,
		EmailVerified: u.EmailVerified,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Picture:       u.Picture,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by normalized email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "email = ?", NormalizeEmail(email))
}

// GetByOAuthID retrieves a user by the provider subject
func (r *Repository) GetByOAuthID(ctx context.Context, oauthID string) (*User, error) {
	return r.getOne(ctx, "oauth_id = ?", oauthID)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// LinkOAuth attaches oauthID to the user in a single statement, filling only
// the profile fields that are still empty. emailVerified can only move the
// flag from false to true. A password set on a row whose email was never
// verified is dropped: nobody proved they own the address when it was chosen.
func (r *Repository) LinkOAuth(ctx context.Context, id uuid.UUID, oauthID string, profile Profile, emailVerified bool) (*User, error) {
	dbUser := new(database.User)
	result, err := r.db.NewUpdate().
		Model(dbUser).
		Set("oauth_id = ?", oauthID).
		Set("first_name = CASE WHEN first_name = '' THEN ? ELSE first_name END", profile.FirstName).
		Set("last_name = CASE WHEN last_name = '' THEN ? ELSE last_name END", profile.LastName).
		Set("picture = CASE WHEN picture = '' THEN ? ELSE picture END", profile.Picture).
		Set("password_hash = CASE WHEN email_verified THEN password_hash ELSE NULL END").
		Set("email_verified = email_verified OR ?", emailVerified).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("(oauth_id IS NULL OR oauth_id = ?)", oauthID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to link oauth identity: %w", err)
	}

	if rowsAffected(result) == 0 {
		// Either the user vanished or another identity is already attached.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrDuplicateOAuthID
	}

	return mapDBUserToModel(dbUser), nil
}

// MarkEmailAsVerified flips email_verified to true. Calling it twice is harmless.
func (r *Repository) MarkEmailAsVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("email_verified = ?", true).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark email as verified: %w", err)
	}
	if rowsAffected(result) == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the user's password digest
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rowsAffected(result) == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the user; sessions and otps go with it via ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if rowsAffected(result) == 0 {
		return ErrNotFound
	}
	return nil
}

func rowsAffected(result sql.Result) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// mapConstraintError translates Postgres constraint violations into domain
// errors. It returns nil for anything else.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case "users_email_key":
			return ErrDuplicateEmail
		case "users_username_key":
			return ErrDuplicateUsername
		case "users_oauth_id_key":
			return ErrDuplicateOAuthID
		}
	case pqCheckViolation:
		if pqErr.Constraint == "users_auth_method_check" {
			return ErrMissingAuthMethod
		}
	}
	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:            dbu.ID,
		Email:         dbu.Email,
		Username:      dbu.Username,
		PasswordHash:  dbu.PasswordHash,
		OAuthID:       dbu.OAuthID,
		EmailVerified: dbu.EmailVerified,
		FirstName:     dbu.FirstName,
		LastName:      dbu.LastName,
		Picture:       dbu.Picture,
		CreatedAt:     dbu.CreatedAt,
		UpdatedAt:     dbu.UpdatedAt,
	}
}
