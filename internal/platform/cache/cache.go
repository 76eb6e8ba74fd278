package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON read models under keys stamped with a namespace-wide
// generation. Bump advances the generation, so stale entries are never read
// again and age out through their TTL instead of being deleted.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	genKey string
}

func NewCache(rdb *redis.Client, namespace string, ttl time.Duration) *Cache {
	if namespace == "" {
		namespace = "cache"
	}
	return &Cache{rdb: rdb, ttl: ttl, genKey: namespace + ":version"}
}

// disabled covers the nil cache used when Redis is not configured.
func (c *Cache) disabled() bool {
	return c == nil || c.rdb == nil
}

// Version returns the current generation, seeding it with 1 in the same round
// trip when the key is missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c.disabled() {
		return 0, nil
	}
	var gen *redis.StringCmd
	if _, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, c.genKey, 1, 0)
		gen = p.Get(ctx, c.genKey)
		return nil
	}); err != nil {
		return 0, err
	}
	v, err := gen.Int64()
	if err != nil {
		return 0, err
	}
	if v < 1 {
		// Someone reset the counter by hand.
		if err := c.rdb.Set(ctx, c.genKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		v = 1
	}
	return v, nil
}

// BuildKey joins parts with ':' and appends the generation as ":v<N>".
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	key := strings.Join(parts, ":")
	if c.disabled() {
		return key, nil
	}
	v, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return key + ":v" + strconv.FormatInt(v, 10), nil
}

// FetchJSON decodes the entry at key into dest. On a miss, or when the stored
// payload no longer decodes, loader runs and its result is written back.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if hit, err := c.read(ctx, key, dest); err != nil || hit {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if !c.disabled() {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

func (c *Cache) read(ctx context.Context, key string, dest any) (bool, error) {
	if c.disabled() {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return json.Unmarshal(raw, dest) == nil, nil
}

// Bump starts a new generation.
func (c *Cache) Bump(ctx context.Context) error {
	if c.disabled() {
		return nil
	}
	return c.rdb.Incr(ctx, c.genKey).Err()
}
