package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis. Breaker state is kept under
// three related keys per provider (state/failures/last_failure), written
// together through a pipeline so a reader never observes a half-updated
// snapshot.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(host string, port int, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

// Get retrieves a value from Redis
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get value from Redis: %w", err)
	}
	return val, nil
}

// Set stores a value in Redis with TTL
func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		return r.client.Del(ctx, key).Err()
	}

	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set value in Redis: %w", err)
	}
	return nil
}

// Delete removes a key from Redis
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}
	return nil
}

// IncrWithExpire increments key and (re)applies ttl in one pipeline, so the
// counter and its expiry never drift apart across calls.
func (r *RedisCache) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to incr/expire key in Redis: %w", err)
	}
	return incr.Val(), nil
}

func breakerKeys(providerID string) (state, failures, lastFailure string) {
	base := fmt.Sprintf("breaker:%s", providerID)
	return base + ":state", base + ":failures", base + ":last_failure"
}

// SetBreakerState writes the breaker's state, failure count and last
// failure timestamp atomically via a pipeline.
func (r *RedisCache) SetBreakerState(ctx context.Context, providerID string, snapshot BreakerSnapshot, ttl time.Duration) error {
	stateKey, failuresKey, lastFailureKey := breakerKeys(providerID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, stateKey, snapshot.State, ttl)
	pipe.Set(ctx, failuresKey, snapshot.Failures, ttl)
	if !snapshot.LastFailure.IsZero() {
		pipe.Set(ctx, lastFailureKey, snapshot.LastFailure.Unix(), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write breaker state to Redis: %w", err)
	}
	return nil
}

// GetBreakerState reads back a provider's breaker snapshot.
func (r *RedisCache) GetBreakerState(ctx context.Context, providerID string) (BreakerSnapshot, error) {
	stateKey, failuresKey, lastFailureKey := breakerKeys(providerID)

	pipe := r.client.Pipeline()
	stateCmd := pipe.Get(ctx, stateKey)
	failuresCmd := pipe.Get(ctx, failuresKey)
	lastFailureCmd := pipe.Get(ctx, lastFailureKey)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return BreakerSnapshot{}, fmt.Errorf("failed to read breaker state from Redis: %w", err)
	}

	state, err := stateCmd.Result()
	if err == redis.Nil {
		return BreakerSnapshot{}, ErrNotFound
	}

	snapshot := BreakerSnapshot{State: state}
	if failures, err := failuresCmd.Int(); err == nil {
		snapshot.Failures = failures
	}
	if lastFailure, err := lastFailureCmd.Int64(); err == nil {
		snapshot.LastFailure = time.Unix(lastFailure, 0)
	}
	return snapshot, nil
}

// Publish publishes a message on a pub/sub channel.
func (r *RedisCache) Publish(ctx context.Context, channel string, message string) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of messages published to the given pub/sub
// channel, and a cancel func that must be called to release it.
func (r *RedisCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- msg.Payload
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for advanced operations
// (e.g. the rate limiter middleware).
func (r *RedisCache) GetClient() *redis.Client {
	return r.client
}
