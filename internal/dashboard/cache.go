package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "dashboard:version"
	bumpChannel     = "inventory.bump"
)

// Cache keeps rendered overviews in Redis. Keys embed a version counter that
// every ledger or order mutation increments, so older entries simply stop
// being addressed and expire after the TTL. A nil Cache or client is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, starting at 1.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	// SETNX keeps a concurrent Bump from being overwritten by initialisation.
	if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key addresses the overview for filter at the current version.
func (c *Cache) Key(ctx context.Context, filter Filter) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("dashboard:overview:v%d:%s:%s:%s", ver,
		strings.ToLower(strings.TrimSpace(filter.Keyword)), dateToken(filter.From), dateToken(filter.To)), nil
}

// Get returns the cached overview stored under key.
func (c *Cache) Get(ctx context.Context, key string) (Overview, bool, error) {
	if !c.enabled() {
		return Overview{}, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Overview{}, false, nil
	}
	if err != nil {
		return Overview{}, false, err
	}
	var out Overview
	if err := json.Unmarshal(payload, &out); err != nil {
		return Overview{}, false, fmt.Errorf("dashboard cache: decode %s: %w", key, err)
	}
	return out, true, nil
}

// Put stores the overview under key for the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, overview Overview) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(overview)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates every cached overview and announces the new version.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dayLayout)
}
