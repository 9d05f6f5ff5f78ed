// Package storage builds the repositories selected by configuration.
package storage

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/authflow/internal/auth"
	"github.com/redmonkez12/authflow/internal/config"
	"github.com/redmonkez12/authflow/internal/otp"
	"github.com/redmonkez12/authflow/internal/session"
	"github.com/redmonkez12/authflow/internal/storage/memory"
	"github.com/redmonkez12/authflow/internal/user"
)

var (
	ErrDatabaseRequired = errors.New("storage: postgres backend requires a database connection")
	ErrRedisRequired    = errors.New("storage: redis store requires a redis client")
)

type Stores struct {
	Users    auth.UserRepository
	Sessions auth.SessionRepository
	Otps     auth.OtpRepository
}

// New picks the user store from cfg.Backend. Sessions and codes follow it
// unless cfg.SessionStore or cfg.OtpStore select redis.
func New(cfg config.StorageConfig, db *bun.DB, redisClient *redis.Client) (*Stores, error) {
	st := &Stores{}

	switch cfg.Backend {
	case config.BackendMemory:
		st.Users = memory.NewUserStore()
		st.Sessions = memory.NewSessionStore()
		st.Otps = memory.NewOtpStore()
	default:
		if db == nil {
			return nil, ErrDatabaseRequired
		}
		st.Users = user.NewRepository(db)
		st.Sessions = session.NewRepository(db)
		st.Otps = otp.NewRepository(db)
	}

	if cfg.SessionStore == config.BackendRedis || cfg.OtpStore == config.BackendRedis {
		if redisClient == nil {
			return nil, ErrRedisRequired
		}
	}
	if cfg.SessionStore == config.BackendRedis {
		st.Sessions = session.NewRedisRepository(redisClient)
	}
	if cfg.OtpStore == config.BackendRedis {
		st.Otps = otp.NewRedisRepository(redisClient)
	}
	return st, nil
}

// NeedsRedis reports whether cfg puts any store on redis.
func NeedsRedis(cfg config.StorageConfig) bool {
	return cfg.SessionStore == config.BackendRedis || cfg.OtpStore == config.BackendRedis
}
