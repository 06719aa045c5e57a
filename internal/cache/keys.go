package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	CategoriesKey        = "categories:all"
	TokenBlacklistPrefix = "jwt:blacklist:"
)

const CategoriesTTL = time.Minute

// TokenBlacklistKey is the key marking a revoked token id.
func TokenBlacklistKey(jti string) string {
	return TokenBlacklistPrefix + jti
}

// Invalidate deletes key. Failures are logged; the entry expires on its own.
func Invalidate(ctx context.Context, key string) {
	if client == nil {
		return
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// InvalidateCategories drops the cached category list.
func InvalidateCategories(ctx context.Context) {
	Invalidate(ctx, CategoriesKey)
}

// Aside returns the cached value for key or calls fetch and caches its
// result for ttl. Without Redis, or on a Redis error, fetch is called directly.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if client == nil {
		return fetch(ctx)
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err == nil {
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		middleware.Logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}
	if data, jsonErr := json.Marshal(value); jsonErr == nil {
		if setErr := client.Set(ctx, key, data, ttl).Err(); setErr != nil {
			middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return value, nil
}

// Revoke marks a token id as revoked until it would have expired anyway.
func Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return client.Set(ctx, TokenBlacklistKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether a token id was revoked. Without Redis nothing is revoked.
func IsRevoked(ctx context.Context, jti string) (bool, error) {
	if client == nil || jti == "" {
		return false, nil
	}
	n, err := client.Exists(ctx, TokenBlacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
