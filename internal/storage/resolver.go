package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/config"
)

// URLCache stores resolved URLs.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisURLCache is a URLCache backed by Redis strings.
type RedisURLCache struct {
	rdb *redis.Client
}

func NewRedisURLCache(rdb *redis.Client) *RedisURLCache {
	return &RedisURLCache{rdb: rdb}
}

func (c *RedisURLCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisURLCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Resolver turns stored image references into viewable URLs.
type Resolver struct {
	store Store
	cache URLCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(store Store, cache URLCache, ttl time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "url_resolver").Logger(),
	}
}

// IsExternal reports whether ref is already an absolute http(s) URL.
func IsExternal(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Resolve returns ref unchanged when it is an http(s) URL and a signed URL
// valid for the configured TTL when it is an object key. Signed URLs are
// cached for half the TTL so a cached URL is never close to expiry.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" || IsExternal(ref) {
		return ref, nil
	}

	cacheKey := config.CacheKey.SignedURLKey(ref)
	if r.cache != nil {
		if u, ok, err := r.cache.Get(ctx, cacheKey); err != nil {
			r.log.Warn().Err(err).Str("key", ref).Msg("Signed URL cache read failed")
		} else if ok {
			return u, nil
		}
	}

	u, err := r.store.SignedURL(ctx, ref, r.ttl)
	if err != nil {
		return "", err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, u, r.ttl/2); err != nil {
			r.log.Warn().Err(err).Str("key", ref).Msg("Signed URL cache write failed")
		}
	}
	return u, nil
}

// ResolveOptional is Resolve for nullable references. Failures are logged
// and yield an empty URL. A nil Resolver resolves nothing.
func (r *Resolver) ResolveOptional(ctx context.Context, ref *string) string {
	if r == nil || ref == nil {
		return ""
	}
	u, err := r.Resolve(ctx, *ref)
	if err != nil {
		r.log.Error().Err(err).Str("key", *ref).Msg("Failed to resolve object URL")
		return ""
	}
	return u
}
