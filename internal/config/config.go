package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Version     string
	API         APIConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Providers   ProvidersConfig
	Breaker     BreakerConfig
	Cache       CacheConfig
	Aggregator  AggregatorConfig
	Ingestor    IngestorConfig
}

// APIConfig contains API server configuration
type APIConfig struct {
	Port           int
	Host           string
	RateLimit      int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig contains PostgreSQL configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	SSLMode      string
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ProviderConfig holds per-provider rate API settings
type ProviderConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Priority int // lower is higher priority; the lowest is primary unless PROVIDERS_PRIMARY is set
}

// ProvidersConfig contains all configured rate providers
type ProvidersConfig struct {
	Primary string // provider id treated as primary for deviation comparisons
	Configs map[string]ProviderConfig
}

// BreakerConfig contains circuit breaker tuning
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CacheConfig contains TTLs for cached artifacts
type CacheConfig struct {
	RateTTL           time.Duration
	ValidationPosTTL  time.Duration
	ValidationNegTTL  time.Duration
	BreakerTTL        time.Duration
	TopCurrenciesTTL  time.Duration
}

// AggregatorConfig contains rate-fusion tuning
type AggregatorConfig struct {
	DeviationThreshold float64 // absolute difference in rate units, e.g. 1.0
}

// IngestorConfig contains background ingestion tuning
type IngestorConfig struct {
	BaseCurrencies   []string
	TargetCurrencies []string
	UpdateInterval   time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		Environment: getEnv("ENV", "development"),
		Version:     getEnv("VERSION", "1.0.0"),
		API: APIConfig{
			Port:           getEnvAsInt("API_PORT", 8080),
			Host:           getEnv("API_HOST", "0.0.0.0"),
			RateLimit:      getEnvAsInt("API_RATE_LIMIT", 100),
			ReadTimeout:    time.Duration(getEnvAsInt("API_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:   time.Duration(getEnvAsInt("API_WRITE_TIMEOUT", 30)) * time.Second,
			AllowedOrigins: getEnvAsSlice("API_ALLOW_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "ratefusion"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Providers: ProvidersConfig{
			Primary: getEnv("PROVIDERS_PRIMARY", ""),
			Configs: map[string]ProviderConfig{
				"fixerio": {
					APIKey:   getEnv("FIXERIO_API_KEY", ""),
					BaseURL:  getEnv("FIXERIO_BASE_URL", "http://data.fixer.io/api"),
					Timeout:  time.Duration(getEnvAsInt("FIXERIO_TIMEOUT", 3)) * time.Second,
					Priority: getEnvAsInt("FIXERIO_PRIORITY", 0),
				},
				"openexchangerates": {
					APIKey:   getEnv("OPENEXCHANGERATES_API_KEY", ""),
					BaseURL:  getEnv("OPENEXCHANGERATES_BASE_URL", "https://openexchangerates.org/api"),
					Timeout:  time.Duration(getEnvAsInt("OPENEXCHANGERATES_TIMEOUT", 3)) * time.Second,
					Priority: getEnvAsInt("OPENEXCHANGERATES_PRIORITY", 1),
				},
				"currencyapi": {
					APIKey:   getEnv("CURRENCYAPI_API_KEY", ""),
					BaseURL:  getEnv("CURRENCYAPI_BASE_URL", "https://api.currencyapi.com/v3"),
					Timeout:  time.Duration(getEnvAsInt("CURRENCYAPI_TIMEOUT", 3)) * time.Second,
					Priority: getEnvAsInt("CURRENCYAPI_PRIORITY", 2),
				},
			},
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:  time.Duration(getEnvAsInt("BREAKER_RECOVERY_TIMEOUT_SECONDS", 3600)) * time.Second,
			SuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 2),
		},
		Cache: CacheConfig{
			RateTTL:          time.Duration(getEnvAsInt("CACHE_RATE_TTL_SECONDS", 300)) * time.Second,
			ValidationPosTTL: time.Duration(getEnvAsInt("CACHE_VALIDATION_POS_TTL_SECONDS", 900)) * time.Second,
			ValidationNegTTL: time.Duration(getEnvAsInt("CACHE_VALIDATION_NEG_TTL_SECONDS", 300)) * time.Second,
			BreakerTTL:       time.Duration(getEnvAsInt("CACHE_BREAKER_TTL_SECONDS", 3600)) * time.Second,
			TopCurrenciesTTL: time.Duration(getEnvAsInt("CACHE_TOP_CURRENCIES_TTL_SECONDS", 86400)) * time.Second,
		},
		Aggregator: AggregatorConfig{
			DeviationThreshold: getEnvAsFloat("AGGREGATOR_DEVIATION_THRESHOLD", 1.0),
		},
		Ingestor: IngestorConfig{
			BaseCurrencies:   getEnvAsSlice("INGESTOR_BASE_CURRENCIES", []string{"USD", "EUR", "GBP"}),
			TargetCurrencies: getEnvAsSlice("INGESTOR_TARGET_CURRENCIES", []string{"VND", "JPY", "GBP", "EUR", "USD"}),
			UpdateInterval:   time.Duration(getEnvAsInt("INGESTOR_UPDATE_INTERVAL_SECONDS", 300)) * time.Second,
		},
	}

	// Without PROVIDERS_PRIMARY, the provider with the lowest Priority is
	// primary (ties broken by provider id).
	if config.Providers.Primary == "" {
		for id, pc := range config.Providers.Configs {
			cur, ok := config.Providers.Configs[config.Providers.Primary]
			if !ok || pc.Priority < cur.Priority || (pc.Priority == cur.Priority && id < config.Providers.Primary) {
				config.Providers.Primary = id
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "production" {
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in production")
		}
		if c.Database.SSLMode == "disable" {
			errs = append(errs, "DB_SSL_MODE must be enabled in production")
		}
	}

	if c.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if c.Database.Database == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if c.Redis.Host == "" {
		errs = append(errs, "REDIS_HOST is required")
	}
	if _, ok := c.Providers.Configs[c.Providers.Primary]; !ok {
		errs = append(errs, fmt.Sprintf("PROVIDERS_PRIMARY %q has no matching provider config", c.Providers.Primary))
	}
	if c.Aggregator.DeviationThreshold <= 0 {
		errs = append(errs, "AGGREGATOR_DEVIATION_THRESHOLD must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns Redis connection address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions to read environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
