package rbac

import (
	"context"
	"strconv"
	"strings"

	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "authz:version"
	bumpChannel     = "authz.bump"
)

// DecisionCache stores authorization decisions in Redis under a global
// generation counter. Mutating any rule bumps the generation, which re-keys
// every cached decision at once instead of tracking individual entries.
// A nil cache (or unreachable Redis) degrades to direct store evaluation.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDecisionCache instantiates the cache helper.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl}
}

// Version returns the current cache generation, initialising when missing.
func (c *DecisionCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes the cache key for a decision: generation, sorted role names
// and the request path.
func (c *DecisionCache) Key(ctx context.Context, roleNames []string, path string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	parts := []string{"authz", "decision", strconv.FormatInt(ver, 10), strings.Join(roleNames, ","), path}
	return strings.Join(parts, ":"), nil
}

// Get returns a cached decision and whether one was present.
func (c *DecisionCache) Get(ctx context.Context, key string) (allowed, ok bool, err error) {
	if c == nil || c.client == nil {
		return false, false, nil
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

// Set stores a decision under the key for the cache TTL.
func (c *DecisionCache) Set(ctx context.Context, key string, allowed bool) error {
	if c == nil || c.client == nil {
		return nil
	}
	val := "0"
	if allowed {
		val = "1"
	}
	return c.client.Set(ctx, key, val, c.ttl).Err()
}

// Bump invalidates every cached decision by incrementing the generation and
// publishing the new value so other replicas re-key immediately.
func (c *DecisionCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to generation bumps published by other
// replicas and keeps the local version key in step. It returns after
// starting the subscriber goroutine; the goroutine exits with the context.
func (c *DecisionCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}
