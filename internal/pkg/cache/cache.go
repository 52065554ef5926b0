package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no value or has expired.
var ErrNotFound = errors.New("cache: key not found")

// BreakerSnapshot is the full breaker state written atomically by
// SetBreakerState: the state label, consecutive-failure count and the
// timestamp of the most recent failure.
type BreakerSnapshot struct {
	State       string
	Failures    int
	LastFailure time.Time
}

// Cache defines the interface for cache operations used across the
// rate-fusion pipeline: plain KV with TTL, atomic counters, pipelined
// multi-key writes for breaker state, and pub/sub for broadcast fan-out.
type Cache interface {
	// Get retrieves a value from cache. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value in cache with TTL. A zero TTL deletes the key.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// IncrWithExpire atomically increments a counter and (re)sets its TTL
	// in a single round trip, used for the breaker failure counter.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetBreakerState writes state/failures/last-failure for a provider in
	// one pipelined, atomic round trip.
	SetBreakerState(ctx context.Context, providerID string, snapshot BreakerSnapshot, ttl time.Duration) error

	// GetBreakerState reads back a provider's breaker snapshot. Returns
	// ErrNotFound if no breaker state has ever been recorded.
	GetBreakerState(ctx context.Context, providerID string) (BreakerSnapshot, error)

	// Publish publishes a message on a pub/sub channel.
	Publish(ctx context.Context, channel string, message string) error

	// Subscribe returns a channel of messages published to the given
	// pub/sub channel. The returned cancel func must be called to stop
	// the subscription and release resources.
	Subscribe(ctx context.Context, channel string) (msgs <-chan string, cancel func(), err error)

	// Ping tests the cache connection.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}
