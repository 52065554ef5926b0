package wiring

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/repository"
)

// memCache is a minimal cache.Cache good enough to exercise Build's
// validator/breaker construction without a live Redis.
type memCache struct{ values map[string]string }

func newMemCache() *memCache { return &memCache{values: map[string]string{}} }

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}
func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.values[key] = value
	return nil
}
func (c *memCache) Delete(ctx context.Context, key string) error { delete(c.values, key); return nil }
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

func baseTestConfig() *config.Config {
	return &config.Config{
		Providers: config.ProvidersConfig{
			Primary: "fixerio",
			Configs: map[string]config.ProviderConfig{
				"fixerio":           {APIKey: "k", BaseURL: "http://example.invalid", Timeout: time.Second},
				"openexchangerates": {APIKey: "k", BaseURL: "http://example.invalid", Timeout: time.Second},
			},
		},
		Breaker: config.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute, SuccessThreshold: 2},
		Cache: config.CacheConfig{
			RateTTL: 5 * time.Minute, ValidationPosTTL: time.Hour, ValidationNegTTL: time.Minute, BreakerTTL: time.Hour,
		},
		Aggregator: config.AggregatorConfig{DeviationThreshold: 0.01},
	}
}

func TestBuild_UnknownProviderIDFails(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Providers.Configs["bogus"] = config.ProviderConfig{}

	_, err := Build(context.Background(), cfg, newMemCache(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestBuild_PrimaryNotConfiguredFails(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Providers.Primary = "currencyapi"

	_, err := Build(context.Background(), cfg, newMemCache(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currencyapi")
}

// TestBuild_HappyPath is an integration test against a live Postgres
// instance, since wiring.Build takes a concrete *repository.RateRepository.
func TestBuild_HappyPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := "host=" + envOrDefault("TEST_DB_HOST", "localhost") +
		" port=" + envOrDefault("TEST_DB_PORT", "5432") +
		" user=" + envOrDefault("TEST_DB_USER", "postgres") +
		" password=" + envOrDefault("TEST_DB_PASSWORD", "postgres") +
		" dbname=" + envOrDefault("TEST_DB_NAME", "ratefusion_test") +
		" sslmode=disable"

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	repo := repository.New(gormDB, sqlDB)
	cfg := baseTestConfig()

	graph, err := Build(context.Background(), cfg, newMemCache(), repo)
	require.NoError(t, err)
	assert.Len(t, graph.Providers, 2)
	assert.Len(t, graph.Breakers, 2)
	assert.NotNil(t, graph.Aggregator)
	assert.NotNil(t, graph.Validator)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
