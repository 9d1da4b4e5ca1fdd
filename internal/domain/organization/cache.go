package organization

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// kv is the subset of Redis the cache needs.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

var errCacheMiss = errors.New("cache miss")

type redisKV struct {
	client redis.Cmdable
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

func (r redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r redisKV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// CachedDirectory is a read-through Redis cache in front of a Directory.
// Redis failures degrade to direct lookups; they are logged, never returned.
type CachedDirectory struct {
	next   Directory
	store  kv
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedDirectory(next Directory, client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	return newCachedDirectory(next, redisKV{client: client}, ttl, logger)
}

func newCachedDirectory(next Directory, store kv, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "org-cache").Logger(),
	}
}

func idKey(id uuid.UUID) string       { return "org:id:" + id.String() }
func ownerKey(accountID string) string { return "org:owner:" + accountID }

func (c *CachedDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return c.readThrough(ctx, idKey(id), func() (*Organization, error) {
		return c.next.GetByID(ctx, id)
	})
}

func (c *CachedDirectory) GetByOwner(ctx context.Context, accountID string) (*Organization, error) {
	return c.readThrough(ctx, ownerKey(accountID), func() (*Organization, error) {
		return c.next.GetByOwner(ctx, accountID)
	})
}

func (c *CachedDirectory) readThrough(ctx context.Context, key string, load func() (*Organization, error)) (*Organization, error) {
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var org Organization
		if jerr := json.Unmarshal(raw, &org); jerr == nil {
			return &org, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, errCacheMiss):
		c.logger.Warn().Err(err).Str("key", key).Msg("organization cache read failed")
	}

	org, err := load()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(org); err == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("organization cache write failed")
		}
	}
	return org, nil
}

// Invalidate drops both cache entries for org.
func (c *CachedDirectory) Invalidate(ctx context.Context, org *Organization) {
	if err := c.store.Del(ctx, idKey(org.ID), ownerKey(org.UserID)); err != nil {
		c.logger.Warn().Err(err).Str("organization_id", org.ID.String()).Msg("organization cache invalidation failed")
	}
}
