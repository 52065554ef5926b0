package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hxuan190/ratefusion/internal/domain"
)

// NOTE: these are integration tests against a live Postgres instance.
// Run with a reachable TEST_DB_* database, or skip with `go test -short`.
func setupTestRepo(t *testing.T) *RateRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := "host=" + getEnvOrDefault("TEST_DB_HOST", "localhost") +
		" port=" + getEnvOrDefault("TEST_DB_PORT", "5432") +
		" user=" + getEnvOrDefault("TEST_DB_USER", "postgres") +
		" password=" + getEnvOrDefault("TEST_DB_PASSWORD", "postgres") +
		" dbname=" + getEnvOrDefault("TEST_DB_NAME", "ratefusion_test") +
		" sslmode=disable"

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, gormDB.AutoMigrate(&Provider{}, &CurrencyPair{}, &ExchangeRateHistory{}, &APICallLog{}, &BreakerLog{}, &SupportedCurrency{}))

	t.Cleanup(func() {
		gormDB.Exec("DELETE FROM exchange_rate_history")
		gormDB.Exec("DELETE FROM api_call_log")
		gormDB.Exec("DELETE FROM breaker_log")
		gormDB.Exec("DELETE FROM currency_pairs")
		gormDB.Exec("DELETE FROM providers")
		gormDB.Exec("DELETE FROM supported_currencies")
		sqlDB.Close()
	})

	return New(gormDB, sqlDB)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func TestRateRepository_AppendRateHistory_AndLatestSuccessful(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("no observation yet returns found=false", func(t *testing.T) {
		_, found, err := repo.LatestSuccessful(ctx, "USD", "VND")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("returns the most recent successful observation", func(t *testing.T) {
		older := domain.RateRecord{
			Base: "USD", Target: "VND", Rate: decimal.NewFromFloat(24500.0),
			Timestamp: time.Now().UTC().Add(-1 * time.Hour), Provider: "fixerio", Success: true,
		}
		newer := domain.RateRecord{
			Base: "USD", Target: "VND", Rate: decimal.NewFromFloat(24550.0),
			Timestamp: time.Now().UTC(), Provider: "openexchangerates", Success: true,
		}
		failed := domain.RateRecord{
			Base: "USD", Target: "VND", Rate: decimal.Zero,
			Timestamp: time.Now().UTC(), Provider: "currencyapi", Success: false,
		}

		require.NoError(t, repo.AppendRateHistory(ctx, older))
		require.NoError(t, repo.AppendRateHistory(ctx, newer))
		require.NoError(t, repo.AppendRateHistory(ctx, failed))

		rec, found, err := repo.LatestSuccessful(ctx, "USD", "VND")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "openexchangerates", rec.Provider)
		assert.True(t, rec.Rate.Equal(decimal.NewFromFloat(24550.0)))
	})
}

func TestRateRepository_LogAPICall(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	err := repo.LogAPICall(ctx, domain.ProviderCallResult{
		Provider: "fixerio", Endpoint: "/latest", StatusCode: 200,
		LatencyMS: 120, Success: true,
	})
	require.NoError(t, err)
}

func TestRateRepository_LogBreakerTransition(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	err := repo.LogBreakerTransition(ctx, "fixerio", domain.BreakerClosed, domain.BreakerOpen, 5, "failure threshold reached")
	require.NoError(t, err)
}

func TestRateRepository_SupportedCurrencies(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		codes, err := repo.SupportedCurrencies(ctx)
		require.NoError(t, err)
		assert.Empty(t, codes)

		_, found, err := repo.CatalogAge(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("replace then read back", func(t *testing.T) {
		seenAt := time.Now().UTC()
		require.NoError(t, repo.ReplaceSupportedCurrencies(ctx, []string{"USD", "EUR", "VND"}, seenAt))

		codes, err := repo.SupportedCurrencies(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"USD", "EUR", "VND"}, codes)

		age, found, err := repo.CatalogAge(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Less(t, age, 1*time.Minute)
	})

	t.Run("replace drops stale entries", func(t *testing.T) {
		require.NoError(t, repo.ReplaceSupportedCurrencies(ctx, []string{"USD", "EUR", "VND"}, time.Now().UTC()))
		require.NoError(t, repo.ReplaceSupportedCurrencies(ctx, []string{"USD", "JPY"}, time.Now().UTC()))

		codes, err := repo.SupportedCurrencies(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"USD", "JPY"}, codes)
	})
}
