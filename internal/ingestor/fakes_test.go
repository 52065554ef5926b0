package ingestor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeCache is an in-memory stand-in for cache.Cache good enough to drive
// a real aggregator/breaker pair without Redis.
type fakeCache struct {
	mu        sync.Mutex
	values    map[string]string
	breakers  map[string]cache.BreakerSnapshot
	counters  map[string]int64
	publishes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values:   make(map[string]string),
		breakers: make(map[string]cache.BreakerSnapshot),
		counters: make(map[string]int64),
	}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ttl == 0 {
		delete(f.values, key)
		return nil
	}
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeCache) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeCache) SetBreakerState(ctx context.Context, providerID string, snapshot cache.BreakerSnapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakers[providerID] = snapshot
	return nil
}

func (f *fakeCache) GetBreakerState(ctx context.Context, providerID string) (cache.BreakerSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.breakers[providerID]
	if !ok {
		return cache.BreakerSnapshot{}, cache.ErrNotFound
	}
	return snap, nil
}

func (f *fakeCache) Publish(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, message)
	return nil
}

func (f *fakeCache) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishes)
}

func (f *fakeCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string)
	return ch, func() { close(ch) }, nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }
func (f *fakeCache) Close() error                   { return nil }

// fakeRepo is an in-memory stand-in for ports.RateRepository.
type fakeRepo struct {
	mu          sync.Mutex
	history     []domain.RateRecord
	apiCalls    []domain.ProviderCallResult
	currencies  []string
	catalogSeen time.Time
	hasCatalog  bool
}

func newFakeRepo(currencies []string) *fakeRepo {
	return &fakeRepo{currencies: currencies}
}

func (r *fakeRepo) AppendRateHistory(ctx context.Context, rec domain.RateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, rec)
	return nil
}

func (r *fakeRepo) LatestSuccessful(ctx context.Context, base, target string) (domain.RateRecord, bool, error) {
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

func (r *fakeRepo) LogAPICall(ctx context.Context, result domain.ProviderCallResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiCalls = append(r.apiCalls, result)
	return nil
}

func (r *fakeRepo) LogBreakerTransition(ctx context.Context, providerID string, prev, next domain.BreakerState, failures int, reason string) error {
	return nil
}

func (r *fakeRepo) SupportedCurrencies(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currencies, nil
}

func (r *fakeRepo) ReplaceSupportedCurrencies(ctx context.Context, codes []string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies = codes
	r.catalogSeen = seenAt
	r.hasCatalog = true
	return nil
}

func (r *fakeRepo) CatalogAge(ctx context.Context) (time.Duration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasCatalog {
		return 0, false, nil
	}
	return time.Since(r.catalogSeen), true, nil
}

// fakeProvider is a ports.ProviderClient that always succeeds with a
// fixed rate, or always fails when failing is true.
type fakeProvider struct {
	name    string
	rate    string
	failing bool
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	if p.failing {
		return domain.ProviderCallResult{Provider: p.name, Success: false, Error: "simulated failure"}, nil
	}
	rate := mustDecimal(p.rate)
	return domain.ProviderCallResult{
		Provider: p.name,
		Success:  true,
		Rate: &domain.RateRecord{
			Base: base, Target: target, Rate: rate,
			Timestamp: time.Now().UTC(), Provider: p.name, Success: true,
		},
	}, nil
}

func (p *fakeProvider) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	return nil, nil
}

func (p *fakeProvider) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	return []string{"USD", "EUR", "GBP", "VND", "JPY"}, nil
}
