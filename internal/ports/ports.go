// Package ports declares the interfaces the domain packages depend on,
// so aggregator/ingestor/broadcast can be tested against fakes without a
// live Redis, Postgres, or HTTP provider. The cache port itself lives in
// internal/pkg/cache (Cache) and is used directly — it is already an
// interface, duplicating it here would just be indirection.
package ports

import (
	"context"
	"time"

	"github.com/hxuan190/ratefusion/internal/domain"
)

// ProviderClient is the uniform interface over a third-party rate
// provider, regardless of that provider's wire format.
type ProviderClient interface {
	Name() string

	// GetRate fetches a single base->target quote.
	GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error)

	// GetAllRates fetches every quote the provider offers for base.
	GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error)

	// GetSupportedCurrencies lists currency codes this provider can quote.
	GetSupportedCurrencies(ctx context.Context) ([]string, error)
}

// Breaker guards calls to a single provider with a CLOSED/OPEN/HALF_OPEN
// state machine backed by shared (cross-process) state.
type Breaker interface {
	ProviderID() string

	// Call admits or rejects fn based on current breaker state, and
	// records the outcome. Returns errors.BreakerOpen (wrapped) when the
	// breaker rejects the call without invoking fn.
	Call(ctx context.Context, fn func(ctx context.Context) (domain.ProviderCallResult, error)) (domain.ProviderCallResult, error)

	// Snapshot returns the breaker's current state for health/admin
	// reporting.
	Snapshot(ctx context.Context) (domain.BreakerSnapshot, error)

	// Reset force-closes the breaker (operator action).
	Reset(ctx context.Context) error
}

// RateRepository is the durable store for rate history, API call
// observability, breaker transitions, and the supported-currency catalog.
type RateRepository interface {
	// AppendRateHistory records one successful or failed rate observation.
	AppendRateHistory(ctx context.Context, rec domain.RateRecord) error

	// LatestSuccessful returns the most recent successful observation for
	// a pair, used as the stale-cache fallback. Returns
	// (RateRecord{}, false, nil) if none exists.
	LatestSuccessful(ctx context.Context, base, target string) (domain.RateRecord, bool, error)

	// LogAPICall records one provider call for observability.
	LogAPICall(ctx context.Context, result domain.ProviderCallResult) error

	// LogBreakerTransition records a breaker state change for audit. Must
	// never block the transition it documents if the write fails.
	LogBreakerTransition(ctx context.Context, providerID string, prev, next domain.BreakerState, failures int, reason string) error

	// SupportedCurrencies returns the full catalog of currency codes the
	// system considers serviceable.
	SupportedCurrencies(ctx context.Context) ([]string, error)

	// ReplaceSupportedCurrencies overwrites the catalog after a refresh
	// pass that unions each provider's supported list.
	ReplaceSupportedCurrencies(ctx context.Context, codes []string, seenAt time.Time) error

	// CatalogAge returns how long ago the catalog was last refreshed, and
	// whether a catalog exists at all.
	CatalogAge(ctx context.Context) (time.Duration, bool, error)
}
