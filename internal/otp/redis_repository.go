package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// consumeScript sets consumed_at only when the code exists, is unconsumed and
// has not expired at ARGV[1] (unix millis).
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('HGET', KEYS[1], 'consumed_at') ~= '' then
	return 0
end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) <= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[1])
return 1
`)

// RedisRepository stores codes as hashes that expire with the code, plus a
// per-user index set.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func otpKey(id uuid.UUID) string {
	return fmt.Sprintf("otp:%s", id.String())
}

func userOtpsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_otps:%s", userID.String())
}

// Create stores the code with a TTL matching its expiry
func (r *RedisRepository) Create(ctx context.Context, o *Otp) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ttl := time.Until(o.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("otp expiration time is in the past")
	}

	key := otpKey(o.ID)
	userKey := userOtpsKey(o.UserID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":     o.UserID.String(),
		"code":        o.Code,
		"purpose":     string(o.Purpose),
		"expires_at":  o.ExpiresAt.UnixMilli(),
		"mail_id":     o.MailID,
		"consumed_at": "",
		"created_at":  createdAt.UnixMilli(),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, userKey, o.ID.String())
	pipe.Expire(ctx, userKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// FindActive scans the user's index for matching unconsumed codes. Index
// entries whose hash already expired are pruned on the way.
func (r *RedisRepository) FindActive(ctx context.Context, userID uuid.UUID, code string, now time.Time) ([]*Otp, error) {
	userKey := userOtpsKey(userID)

	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user otps: %w", err)
	}

	var found []*Otp
	for _, rawID := range ids {
		id, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}

		data, err := r.client.HGetAll(ctx, otpKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get otp: %w", err)
		}
		if len(data) == 0 {
			r.client.SRem(ctx, userKey, rawID)
			continue
		}

		o, err := parseOtp(id, userID, data)
		if err != nil {
			return nil, err
		}
		if o.Code == code && o.Active(now) {
			found = append(found, o)
		}
	}
	return found, nil
}

// Consume marks the code used. Only one caller can win; the others get ErrNotFound.
func (r *RedisRepository) Consume(ctx context.Context, id uuid.UUID, now time.Time) error {
	won, err := consumeScript.Run(ctx, r.client, []string{otpKey(id)}, now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if won == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUser removes every code owned by userID
func (r *RedisRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	userKey := userOtpsKey(userID)

	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list user otps: %w", err)
	}

	keys := []string{userKey}
	for _, rawID := range ids {
		if id, err := uuid.Parse(rawID); err == nil {
			keys = append(keys, otpKey(id))
		}
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user otps: %w", err)
	}
	return nil
}

func parseOtp(id, userID uuid.UUID, data map[string]string) (*Otp, error) {
	expiresAt, err := strconv.ParseInt(data["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt otp expires_at: %w", err)
	}

	o := &Otp{
		ID:        id,
		UserID:    userID,
		Code:      data["code"],
		Purpose:   Purpose(data["purpose"]),
		ExpiresAt: time.UnixMilli(expiresAt),
		MailID:    data["mail_id"],
	}
	if ms, err := strconv.ParseInt(data["created_at"], 10, 64); err == nil {
		o.CreatedAt = time.UnixMilli(ms)
	}
	if v := data["consumed_at"]; v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.UnixMilli(ms)
			o.ConsumedAt = &t
		}
	}
	return o, nil
}
