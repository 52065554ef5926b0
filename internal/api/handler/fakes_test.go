package handler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
)

// fakeBreaker is a ports.Breaker stand-in for handler tests that never
// need a real cache-backed circuit breaker.
type fakeBreaker struct {
	providerID   string
	snapshot     domain.BreakerSnapshot
	snapshotErr  error
	resetErr     error
	resetCalled  bool
}

func (b *fakeBreaker) ProviderID() string { return b.providerID }

func (b *fakeBreaker) Call(ctx context.Context, fn func(ctx context.Context) (domain.ProviderCallResult, error)) (domain.ProviderCallResult, error) {
	return fn(ctx)
}

func (b *fakeBreaker) Snapshot(ctx context.Context) (domain.BreakerSnapshot, error) {
	return b.snapshot, b.snapshotErr
}

func (b *fakeBreaker) Reset(ctx context.Context) error {
	b.resetCalled = true
	return b.resetErr
}

// memCache is an in-memory cache.Cache good enough to drive a real
// aggregator/breaker pair without Redis.
type memCache struct {
	mu       sync.Mutex
	values   map[string]string
	breakers map[string]cache.BreakerSnapshot
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{
		values:   make(map[string]string),
		breakers: make(map[string]cache.BreakerSnapshot),
		counters: make(map[string]int64),
	}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl == 0 {
		delete(c.values, key)
		return nil
	}
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *memCache) SetBreakerState(ctx context.Context, providerID string, snapshot cache.BreakerSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakers[providerID] = snapshot
	return nil
}

func (c *memCache) GetBreakerState(ctx context.Context, providerID string) (cache.BreakerSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.breakers[providerID]
	if !ok {
		return cache.BreakerSnapshot{}, cache.ErrNotFound
	}
	return snap, nil
}

func (c *memCache) Publish(ctx context.Context, channel, message string) error { return nil }

func (c *memCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string)
	return ch, func() { close(ch) }, nil
}

func (c *memCache) Ping(ctx context.Context) error { return nil }
func (c *memCache) Close() error                   { return nil }

// memRepo is an in-memory ports.RateRepository.
type memRepo struct {
	mu         sync.Mutex
	history    []domain.RateRecord
	currencies []string
	hasCatalog bool
	catalogAge time.Time
}

func newMemRepo(currencies []string) *memRepo {
	return &memRepo{currencies: currencies, hasCatalog: true, catalogAge: time.Now()}
}

func (r *memRepo) AppendRateHistory(ctx context.Context, rec domain.RateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, rec)
	return nil
}

func (r *memRepo) LatestSuccessful(ctx context.Context, base, target string) (domain.RateRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.history) - 1; i >= 0; i-- {
		rec := r.history[i]
		if rec.Base == base && rec.Target == target && rec.Success {
			return rec, true, nil
		}
	}
	return domain.RateRecord{}, false, nil
}

func (r *memRepo) LogAPICall(ctx context.Context, result domain.ProviderCallResult) error { return nil }

func (r *memRepo) LogBreakerTransition(ctx context.Context, providerID string, prev, next domain.BreakerState, failures int, reason string) error {
	return nil
}

func (r *memRepo) SupportedCurrencies(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currencies, nil
}

func (r *memRepo) ReplaceSupportedCurrencies(ctx context.Context, codes []string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies = codes
	r.hasCatalog = true
	r.catalogAge = seenAt
	return nil
}

func (r *memRepo) CatalogAge(ctx context.Context) (time.Duration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasCatalog {
		return 0, false, nil
	}
	return time.Since(r.catalogAge), true, nil
}

// memProvider is a ports.ProviderClient always returning a fixed rate.
type memProvider struct {
	name    string
	rate    string
	failing bool
}

func (p *memProvider) Name() string { return p.name }

func (p *memProvider) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	if p.failing {
		return domain.ProviderCallResult{Provider: p.name, Success: false, Error: "simulated failure"}, nil
	}
	rate, _ := decimal.NewFromString(p.rate)
	return domain.ProviderCallResult{
		Provider: p.name,
		Success:  true,
		Rate: &domain.RateRecord{
			Base: base, Target: target, Rate: rate,
			Timestamp: time.Now().UTC(), Provider: p.name, Success: true,
		},
	}, nil
}

func (p *memProvider) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	return nil, nil
}

func (p *memProvider) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	return []string{"USD", "EUR", "GBP", "VND", "JPY"}, nil
}
