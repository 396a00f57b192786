package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestLikeCountMissThenPrime(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.LikeCount(ctx, "u1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetLikeCount(ctx, "u1", 7))
	n, err := c.LikeCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestIncrLikeCountOnlyWhenPrimed(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// Cold key: increment is a no-op, the next read still misses.
	require.NoError(t, c.IncrLikeCount(ctx, "u2"))
	_, err := c.LikeCount(ctx, "u2")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetLikeCount(ctx, "u2", 3))
	require.NoError(t, c.IncrLikeCount(ctx, "u2"))
	n, err := c.LikeCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestDailySwipeQuota(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		n, err := c.IncrDailySwipes(ctx, "u3", now)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	n, err := c.DailySwipes(ctx, "u3", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Quota resets at midnight.
	mr.FastForward(25 * time.Hour)
	n, err = c.DailySwipes(ctx, "u3", now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOTPLifecycle(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetOTP(ctx, "u4", "482913"))
	code, err := c.OTP(ctx, "u4")
	require.NoError(t, err)
	assert.Equal(t, "482913", code)

	require.NoError(t, c.DeleteOTP(ctx, "u4"))
	_, err = c.OTP(ctx, "u4")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetOTP(ctx, "u4", "111111"))
	mr.FastForward(11 * time.Minute)
	_, err = c.OTP(ctx, "u4")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestAllowFixedWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
