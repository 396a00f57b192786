// Package cache wraps Redis for the hot counters the API serves on every
// request: like counts, daily swipe quotas, login OTPs and rate limits.
// A cache miss falls back to the database at the service layer; Redis being
// down degrades reads, it never fails writes of record.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jodi-app/jodi-server/internal/config"
)

// ErrMiss is returned when a key is absent so callers can tell a true zero
// from "not cached yet".
var ErrMiss = errors.New("cache miss")

const (
	likeCountTTL = time.Hour
	otpTTL       = 10 * time.Minute
)

type Cache struct {
	client *redis.Client
}

func NewRedis(cfg *config.Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client, used by tests with miniredis.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error { return c.client.Close() }

func likeCountKey(userID string) string { return "likes:count:" + userID }

// LikeCount returns the cached number of likes received, or ErrMiss.
func (c *Cache) LikeCount(ctx context.Context, userID string) (int64, error) {
	val, err := c.client.Get(ctx, likeCountKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// SetLikeCount primes the counter after a database recount.
func (c *Cache) SetLikeCount(ctx context.Context, userID string, n int64) error {
	return c.client.Set(ctx, likeCountKey(userID), n, likeCountTTL).Err()
}

// IncrLikeCount bumps the counter only when it is already cached, so a
// cold key stays cold until the next recount primes it.
func (c *Cache) IncrLikeCount(ctx context.Context, userID string) error {
	key := likeCountKey(userID)
	ok, err := c.client.Expire(ctx, key, likeCountTTL).Result()
	if err != nil || !ok {
		return err
	}
	return c.client.Incr(ctx, key).Err()
}

func swipeQuotaKey(userID string, day time.Time) string {
	return "swipes:quota:" + userID + ":" + day.UTC().Format("2006-01-02")
}

// IncrDailySwipes bumps today's swipe counter and returns the new total.
// The key expires at the next UTC midnight so quotas reset automatically.
func (c *Cache) IncrDailySwipes(ctx context.Context, userID string, now time.Time) (int64, error) {
	key := swipeQuotaKey(userID, now)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		midnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		if err := c.client.ExpireAt(ctx, key, midnight).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// DailySwipes returns today's swipe count, zero when unset.
func (c *Cache) DailySwipes(ctx context.Context, userID string, now time.Time) (int64, error) {
	val, err := c.client.Get(ctx, swipeQuotaKey(userID, now)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func otpKey(userID string) string { return "otp:" + userID }

// SetOTP stores a one-time phone verification code for ten minutes.
func (c *Cache) SetOTP(ctx context.Context, userID, code string) error {
	return c.client.Set(ctx, otpKey(userID), code, otpTTL).Err()
}

// OTP returns the pending code for a user, or ErrMiss when expired.
func (c *Cache) OTP(ctx context.Context, userID string) (string, error) {
	val, err := c.client.Get(ctx, otpKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// DeleteOTP consumes the code after a successful verification.
func (c *Cache) DeleteOTP(ctx context.Context, userID string) error {
	return c.client.Del(ctx, otpKey(userID)).Err()
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:" + hex.EncodeToString(sum[:])
}

// RevokeToken denylists a refresh token until it would have expired anyway.
func (c *Cache) RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, revokedKey(token), "1", ttl).Err()
}

// TokenRevoked reports whether logout has denylisted a refresh token.
func (c *Cache) TokenRevoked(ctx context.Context, token string) (bool, error) {
	err := c.client.Get(ctx, revokedKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Allow implements a fixed-window rate limit. The first hit in a window
// sets the expiry; every hit increments the counter.
func (c *Cache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	full := "ratelimit:" + key
	n, err := c.client.Incr(ctx, full).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := c.client.Expire(ctx, full, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}
