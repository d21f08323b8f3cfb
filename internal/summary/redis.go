package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"prdforge/internal/services"
)

const keyPrefix = "prdforge"

type redisClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisState keeps windows in a set and the overview in a string key, both
// expiring after ttl.
type RedisState struct {
	client redisClient
	ttl    time.Duration
}

// ConnectRedis dials addr and verifies the connection.
func ConnectRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisState, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, services.Wrap(services.ErrConfiguration, "summary", "redis connect", "address required", nil)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, services.Wrap(services.ErrTransient, "summary", "redis connect", fmt.Sprintf("ping %s", addr), err)
	}
	return newRedisState(client, ttl), nil
}

func newRedisState(client redisClient, ttl time.Duration) *RedisState {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisState{client: client, ttl: ttl}
}

func windowsKey(projectID string) string {
	return fmt.Sprintf("%s:windows:%s", keyPrefix, projectKey(projectID))
}

func overviewKey(projectID string) string {
	return fmt.Sprintf("%s:overview:%s", keyPrefix, projectKey(projectID))
}

// Claim adds the window to the project's set; a member that already existed
// means another session summarized it.
func (r *RedisState) Claim(ctx context.Context, projectID string, window int64) (bool, error) {
	key := windowsKey(projectID)
	added, err := r.client.SAdd(ctx, key, windowMember(window)).Result()
	if err != nil {
		return false, fmt.Errorf("claim summary window: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return added > 0, fmt.Errorf("expire summary windows: %w", err)
	}
	return added > 0, nil
}

// Overview returns the stored overview or "".
func (r *RedisState) Overview(ctx context.Context, projectID string) (string, error) {
	val, err := r.client.Get(ctx, overviewKey(projectID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get overview: %w", err)
	}
	return val, nil
}

// SetOverview replaces the overview.
func (r *RedisState) SetOverview(ctx context.Context, projectID, overview string) error {
	if err := r.client.Set(ctx, overviewKey(projectID), overview, r.ttl).Err(); err != nil {
		return fmt.Errorf("set overview: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisState) Close() error {
	return r.client.Close()
}
