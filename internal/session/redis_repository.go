package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// invalidateScript flips is_valid only on a live key so that a revoke racing
// with TTL eviction never recreates a hash without expiry.
var invalidateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'is_valid', '0')
	return 1
end
return 0
`)

// RedisRepository stores sessions as Redis hashes that expire with the session.
type RedisRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client, now: time.Now}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

func userSessionsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_sessions:%s", userID.String())
}

// Create stores the session with a TTL matching its expiry
func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	tokenHash := HashID(s.ID)
	key := sessionKey(tokenHash)
	userKey := userSessionsKey(s.UserID)

	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session expiration time is in the past")
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    s.UserID.String(),
		"expires_at": s.ExpiresAt.UnixMilli(),
		"is_valid":   boolField(s.IsValid),
		"user_agent": s.UserAgent,
		"created_at": s.CreatedAt.UnixMilli(),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, tokenHash)
	pipe.Expire(ctx, userKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// GetValid returns the session while it is marked valid
func (r *RedisRepository) GetValid(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.HGetAll(ctx, sessionKey(HashID(id))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(data) == 0 || data["is_valid"] != "1" {
		return nil, ErrNotFound
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session user_id: %w", err)
	}
	expiresAt, err := parseMillis(data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session expires_at: %w", err)
	}
	createdAt, _ := parseMillis(data["created_at"])

	return &Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		IsValid:   true,
		UserAgent: data["user_agent"],
		CreatedAt: createdAt,
	}, nil
}

// Invalidate marks the session revoked; missing sessions are a no-op
func (r *RedisRepository) Invalidate(ctx context.Context, id string) error {
	if err := invalidateScript.Run(ctx, r.client, []string{sessionKey(HashID(id))}).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session owned by userID
func (r *RedisRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	userKey := userSessionsKey(userID)

	hashes, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get user sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}
	keys = append(keys, userKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
