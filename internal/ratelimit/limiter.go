package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultIPLimit           = 10
	DefaultIPWindow          = 15 * time.Minute
	DefaultEmailCooldown     = 2 * time.Minute
	DefaultMaxVerifyAttempts = 5
	DefaultVerifyAttemptsTTL = 10 * time.Minute
)

// Limiter implements sliding window IP limits, per-email cooldowns and a
// cap on failed code verifications on Redis.
type Limiter struct {
	client            *redis.Client
	keyPrefix         string
	ipLimit           int
	ipWindow          time.Duration
	emailCooldown     time.Duration
	maxVerifyAttempts int
	verifyAttemptsTTL time.Duration
	now               func() time.Time
}

type Option func(*Limiter)

func WithIPLimit(limit int, window time.Duration) Option {
	return func(l *Limiter) {
		l.ipLimit = limit
		l.ipWindow = window
	}
}

func WithEmailCooldown(d time.Duration) Option {
	return func(l *Limiter) { l.emailCooldown = d }
}

func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.keyPrefix = prefix }
}

// WithVerifyAttempts caps failed verifications per email and purpose. The
// counter lives for ttl after the first failure, which should match the code
// lifetime.
func WithVerifyAttempts(limit int, ttl time.Duration) Option {
	return func(l *Limiter) {
		l.maxVerifyAttempts = limit
		l.verifyAttemptsTTL = ttl
	}
}

func NewLimiter(client *redis.Client, opts ...Option) *Limiter {
	l := &Limiter{
		client:            client,
		keyPrefix:         "ratelimit:",
		ipLimit:           DefaultIPLimit,
		ipWindow:          DefaultIPWindow,
		emailCooldown:     DefaultEmailCooldown,
		maxVerifyAttempts: DefaultMaxVerifyAttempts,
		verifyAttemptsTTL: DefaultVerifyAttemptsTTL,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) ipKey(ip, purpose string) string {
	return fmt.Sprintf("%sip:%s:%s", l.keyPrefix, purpose, ip)
}

func (l *Limiter) emailKey(email string) string {
	return fmt.Sprintf("%semail_cooldown:%s", l.keyPrefix, normalizeEmail(email))
}

func (l *Limiter) verifyKey(email, purpose string) string {
	return fmt.Sprintf("%sverify:%s:%s", l.keyPrefix, purpose, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckIPRateLimitWithPurpose reports whether ip used up its budget for
// purpose. Each purpose has its own budget, so that login attempts do not
// eat into signup attempts.
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	return l.exceeded(ctx, l.ipKey(ip, purpose))
}

func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	return l.record(ctx, l.ipKey(ip, purpose))
}

// CheckEmailCooldown reports whether a mail to email was requested recently
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	n, err := l.client.Exists(ctx, l.emailKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the cooldown window for email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if err := l.client.Set(ctx, l.emailKey(email), 1, l.emailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

// CheckVerifyAttempts reports whether email has no failed verifications
// left for purpose.
func (l *Limiter) CheckVerifyAttempts(ctx context.Context, email, purpose string) (bool, error) {
	n, err := l.client.Get(ctx, l.verifyKey(email, purpose)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check verify attempts: %w", err)
	}
	return n >= l.maxVerifyAttempts, nil
}

// RecordFailedVerify counts one wrong code for email and purpose
func (l *Limiter) RecordFailedVerify(ctx context.Context, email, purpose string) error {
	key := l.verifyKey(email, purpose)

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record verify attempt: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.verifyAttemptsTTL).Err(); err != nil {
			return fmt.Errorf("failed to expire verify attempts: %w", err)
		}
	}
	return nil
}

// ResetVerifyAttempts clears the counter after a successful verification
func (l *Limiter) ResetVerifyAttempts(ctx context.Context, email, purpose string) error {
	if err := l.client.Del(ctx, l.verifyKey(email, purpose)).Err(); err != nil {
		return fmt.Errorf("failed to reset verify attempts: %w", err)
	}
	return nil
}

func (l *Limiter) exceeded(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Add(-l.ipWindow).UnixMilli()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return count.Val() >= int64(l.ipLimit), nil
}

func (l *Limiter) record(ctx context.Context, key string) error {
	now := l.now()

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, l.ipWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}
