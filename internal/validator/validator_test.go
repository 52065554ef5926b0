package validator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/ports"
)

type memCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCache() *memCache { return &memCache{values: map[string]string{}} }

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
	return 1, nil
}
func (c *memCache) SetBreakerState(ctx context.Context, providerID string, snapshot cache.BreakerSnapshot, ttl time.Duration) error {
	return nil
}
func (c *memCache) GetBreakerState(ctx context.Context, providerID string) (cache.BreakerSnapshot, error) {
	return cache.BreakerSnapshot{}, cache.ErrNotFound
}
func (c *memCache) Publish(ctx context.Context, channel, message string) error { return nil }
func (c *memCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string)
	return ch, func() { close(ch) }, nil
}
func (c *memCache) Ping(ctx context.Context) error { return nil }
func (c *memCache) Close() error                   { return nil }

type stubRepo struct {
	codes      []string
	codesErr   error
	replaced   []string
	catalogAge time.Duration
	hasCatalog bool
	ageErr     error
}

func (r *stubRepo) AppendRateHistory(ctx context.Context, rec domain.RateRecord) error { return nil }
func (r *stubRepo) LatestSuccessful(ctx context.Context, base, target string) (domain.RateRecord, bool, error) {
	return domain.RateRecord{}, false, nil
}
func (r *stubRepo) LogAPICall(ctx context.Context, result domain.ProviderCallResult) error { return nil }
func (r *stubRepo) LogBreakerTransition(ctx context.Context, providerID string, prev, next domain.BreakerState, failures int, reason string) error {
	return nil
}
func (r *stubRepo) SupportedCurrencies(ctx context.Context) ([]string, error) {
	return r.codes, r.codesErr
}
func (r *stubRepo) ReplaceSupportedCurrencies(ctx context.Context, codes []string, seenAt time.Time) error {
	r.replaced = codes
	return nil
}
func (r *stubRepo) CatalogAge(ctx context.Context) (time.Duration, bool, error) {
	return r.catalogAge, r.hasCatalog, r.ageErr
}

type stubProvider struct {
	name string
	codes []string
	err   error
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	return domain.ProviderCallResult{}, nil
}
func (p *stubProvider) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	return nil, nil
}
func (p *stubProvider) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	return p.codes, p.err
}

func TestValidate_PopularPairShortCircuitsTheCatalog(t *testing.T) {
	repo := &stubRepo{codesErr: errors.New("should not be called")}
	v := New(newMemCache(), repo, nil, time.Hour, time.Minute)

	result := v.Validate(context.Background(), "USD", "EUR")
	assert.True(t, result.Valid)
}

func TestValidate_UnsupportedCurrencyIsRejectedWithReason(t *testing.T) {
	repo := &stubRepo{codes: []string{"USD", "VND"}}
	v := New(newMemCache(), repo, nil, time.Hour, time.Minute)

	result := v.Validate(context.Background(), "USD", "ZZZ")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "ZZZ")
}

func TestValidate_SupportedCatalogPairIsValid(t *testing.T) {
	repo := &stubRepo{codes: []string{"USD", "VND"}}
	v := New(newMemCache(), repo, nil, time.Hour, time.Minute)

	result := v.Validate(context.Background(), "USD", "VND")
	assert.True(t, result.Valid)
}

func TestValidate_CatalogReadErrorFailsOpen(t *testing.T) {
	repo := &stubRepo{codesErr: errors.New("db unreachable")}
	v := New(newMemCache(), repo, nil, time.Hour, time.Minute)

	result := v.Validate(context.Background(), "USD", "ZZZ")
	assert.True(t, result.Valid)
}

func TestValidate_ResultIsCachedAcrossCalls(t *testing.T) {
	repo := &stubRepo{codes: []string{"USD", "VND"}}
	c := newMemCache()
	v := New(c, repo, nil, time.Hour, time.Minute)

	first := v.Validate(context.Background(), "USD", "ZZZ")
	repo.codes = []string{"USD", "VND", "ZZZ"}
	second := v.Validate(context.Background(), "USD", "ZZZ")

	assert.Equal(t, first, second)
	assert.False(t, second.Valid)
}

func TestRefreshCatalog_UnionsProviderCurrenciesAndPopularSet(t *testing.T) {
	repo := &stubRepo{}
	providers := []ports.ProviderClient{
		&stubProvider{name: "fixerio", codes: []string{"USD", "VND"}},
		&stubProvider{name: "openexchangerates", err: errors.New("timeout")},
	}
	v := New(newMemCache(), repo, providers, time.Hour, time.Minute)

	require.NoError(t, v.RefreshCatalog(context.Background()))
	assert.Contains(t, repo.replaced, "USD")
	assert.Contains(t, repo.replaced, "VND")
	assert.Contains(t, repo.replaced, "EUR")
}

func TestEnsureFresh_RefreshesWhenCatalogMissing(t *testing.T) {
	repo := &stubRepo{hasCatalog: false}
	providers := []ports.ProviderClient{&stubProvider{name: "fixerio", codes: []string{"USD"}}}
	v := New(newMemCache(), repo, providers, time.Hour, time.Minute)

	require.NoError(t, v.EnsureFresh(context.Background()))
	assert.NotEmpty(t, repo.replaced)
}

func TestEnsureFresh_SkipsRefreshWhenCatalogFresh(t *testing.T) {
	repo := &stubRepo{hasCatalog: true, catalogAge: time.Minute}
	v := New(newMemCache(), repo, nil, time.Hour, time.Minute)

	require.NoError(t, v.EnsureFresh(context.Background()))
	assert.Nil(t, repo.replaced)
}
