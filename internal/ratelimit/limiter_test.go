package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, opts ...Option) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, opts...), mr
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(nil)
	assert.Equal(t, DefaultIPLimit, l.ipLimit)
	assert.Equal(t, DefaultIPWindow, l.ipWindow)
	assert.Equal(t, "ratelimit:", l.keyPrefix)
	assert.Equal(t, DefaultMaxVerifyAttempts, l.maxVerifyAttempts)
}

func TestLimiter_IPLimitWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(t, WithIPLimit(3, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
		require.NoError(t, err)
		assert.False(t, exceeded, "request %d", i)
		require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"))
	}

	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
	require.NoError(t, err)
	assert.True(t, exceeded)

	exceeded, err = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.2", "login")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, _ := newTestLimiter(t, WithIPLimit(1, time.Minute))
	ctx := context.Background()
	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "otp"))
	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "otp")
	require.NoError(t, err)
	assert.True(t, exceeded)

	now = now.Add(time.Minute + time.Millisecond)
	exceeded, err = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "otp")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLimiter_PurposesAreSeparate(t *testing.T) {
	l, _ := newTestLimiter(t, WithIPLimit(1, time.Minute))
	ctx := context.Background()

	require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"))

	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
	require.NoError(t, err)
	assert.True(t, exceeded)

	exceeded, err = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "signup")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLimiter_EmailCooldown(t *testing.T) {
	l, mr := newTestLimiter(t, WithEmailCooldown(time.Minute))
	ctx := context.Background()

	onCooldown, err := l.CheckEmailCooldown(ctx, "ada@x.com")
	require.NoError(t, err)
	assert.False(t, onCooldown)

	require.NoError(t, l.SetEmailCooldown(ctx, "Ada@X.com "))

	onCooldown, err = l.CheckEmailCooldown(ctx, "ada@x.com")
	require.NoError(t, err)
	assert.True(t, onCooldown)

	mr.FastForward(time.Minute + time.Second)

	onCooldown, err = l.CheckEmailCooldown(ctx, "ada@x.com")
	require.NoError(t, err)
	assert.False(t, onCooldown)
}

func TestLimiter_RedisDown(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	_, err := l.CheckIPRateLimitWithPurpose(context.Background(), "10.0.0.1", "login")
	assert.Error(t, err)

	_, err = l.CheckVerifyAttempts(context.Background(), "ada@x.com", "SIGNUP")
	assert.Error(t, err)
}

func TestLimiter_VerifyAttempts(t *testing.T) {
	l, mr := newTestLimiter(t, WithVerifyAttempts(3, 10*time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		locked, err := l.CheckVerifyAttempts(ctx, "ada@x.com", "FORGOT_PASSWORD")
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d", i)
		require.NoError(t, l.RecordFailedVerify(ctx, "Ada@X.com ", "FORGOT_PASSWORD"))
	}

	locked, err := l.CheckVerifyAttempts(ctx, "ada@x.com", "FORGOT_PASSWORD")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = l.CheckVerifyAttempts(ctx, "ada@x.com", "LOGIN")
	require.NoError(t, err)
	assert.False(t, locked, "purposes are counted separately")

	ttl := mr.TTL("ratelimit:verify:FORGOT_PASSWORD:ada@x.com")
	assert.Equal(t, 10*time.Minute, ttl, "the window starts at the first failure")

	mr.FastForward(10*time.Minute + time.Second)
	locked, err = l.CheckVerifyAttempts(ctx, "ada@x.com", "FORGOT_PASSWORD")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLimiter_ResetVerifyAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, WithVerifyAttempts(1, time.Minute))
	ctx := context.Background()

	require.NoError(t, l.RecordFailedVerify(ctx, "ada@x.com", "SIGNUP"))
	locked, err := l.CheckVerifyAttempts(ctx, "ada@x.com", "SIGNUP")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, l.ResetVerifyAttempts(ctx, "ada@x.com", "SIGNUP"))
	locked, err = l.CheckVerifyAttempts(ctx, "ada@x.com", "SIGNUP")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLimiter_KeyPrefix(t *testing.T) {
	l, mr := newTestLimiter(t, WithKeyPrefix("authflow:rl:"))
	ctx := context.Background()

	require.NoError(t, l.SetEmailCooldown(ctx, "ada@x.com"))
	require.NoError(t, l.RecordFailedVerify(ctx, "ada@x.com", "LOGIN"))

	assert.True(t, mr.Exists("authflow:rl:email_cooldown:ada@x.com"))
	assert.True(t, mr.Exists("authflow:rl:verify:LOGIN:ada@x.com"))
}
