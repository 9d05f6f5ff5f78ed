package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the users table row.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Email         string    `bun:"email,notnull"`
	Username      string    `bun:"username,notnull"`
	PasswordHash  *string   `bun:"password_hash"`
	OAuthID       *string   `bun:"oauth_id"`
	EmailVerified bool      `bun:"email_verified,notnull"`
	FirstName     string    `bun:"first_name,notnull"`
	LastName      string    `bun:"last_name,notnull"`
	Picture       string    `bun:"picture,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Session is the sessions table row. The primary key is the sha256 of the
// refresh value handed to the client.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	TokenHash string    `bun:"token_hash,pk"`
	UserID    uuid.UUID `bun:"user_id,type:uuid,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	IsValid   bool      `bun:"is_valid,notnull"`
	UserAgent string    `bun:"user_agent,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Otp is the otps table row.
type Otp struct {
	bun.BaseModel `bun:"table:otps,alias:o"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID     uuid.UUID  `bun:"user_id,type:uuid,notnull"`
	Code       string     `bun:"code,notnull"`
	Purpose    string     `bun:"purpose,notnull"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	MailID     string     `bun:"mail_id,notnull"`
	ConsumedAt *time.Time `bun:"consumed_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
