package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "lrg:ratelimit:"

// Redis is a fixed one-minute window counter shared by every gateway replica
// that points at the same server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a limiter backed by client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: defaultPrefix, now: time.Now}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedis(client), nil
}

// WithPrefix namespaces the counter keys.
func (r *Redis) WithPrefix(prefix string) *Redis {
	r.prefix = prefix
	return r
}

// Allow increments the counter for the current minute and admits the request
// while the count stays within perMinute.
func (r *Redis) Allow(ctx context.Context, key string, perMinute int) (bool, error) {
	if perMinute <= 0 {
		return true, nil
	}

	window := r.now().Unix() / 60
	counter := fmt.Sprintf("%s%s:%d", r.prefix, key, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, counter)
		pipe.Expire(ctx, counter, 2*time.Minute)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit counter %s: %w", key, err)
	}
	return incr.Val() <= int64(perMinute), nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
