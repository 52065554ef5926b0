// Package aggregator implements the rate fusion pipeline: validate, read
// fresh cache, fan out to providers through their breakers, fuse
// responses into one AggregatedRate, write the cache, publish the
// update, and log observability rows.
package aggregator

import (
	"context"
	"time"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/domain"
	apperrors "github.com/hxuan190/ratefusion/internal/shared/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/ports"
	"github.com/hxuan190/ratefusion/internal/validator"
)

const broadcastChannel = "rates:broadcast"

// ProviderSlot pairs a provider client with the breaker guarding it.
type ProviderSlot struct {
	client  ports.ProviderClient
	breaker ports.Breaker
}

// Aggregator orchestrates provider fan-out and the fusion policy.
type Aggregator struct {
	cache     cache.Cache
	repo      ports.RateRepository
	validator *validator.Validator

	primary     ProviderSlot
	secondaries []ProviderSlot

	deviationThreshold decimal.Decimal
	rateTTL            time.Duration
}

// New builds an Aggregator. primary is the provider named by
// ProvidersConfig.Primary; secondaries are every other configured provider.
func New(c cache.Cache, repo ports.RateRepository, v *validator.Validator, primary ProviderSlot, secondaries []ProviderSlot, cfg config.AggregatorConfig, rateTTL time.Duration) *Aggregator {
	return &Aggregator{
		cache:              c,
		repo:               repo,
		validator:          v,
		primary:            primary,
		secondaries:        secondaries,
		deviationThreshold: decimal.NewFromFloat(cfg.DeviationThreshold),
		rateTTL:            rateTTL,
	}
}

// NewProviderSlot exposes ProviderSlot construction to callers wiring the
// aggregator (internal/wiring.Build).
func NewProviderSlot(client ports.ProviderClient, breaker ports.Breaker) ProviderSlot {
	return ProviderSlot{client: client, breaker: breaker}
}

// GetRate returns the fused rate for base->target, following the
// validate -> fresh-cache -> fan-out -> fuse -> cache-write pipeline.
func (a *Aggregator) GetRate(ctx context.Context, base, target string) (domain.AggregatedRate, error) {
	result := a.validator.Validate(ctx, base, target)
	if !result.Valid {
		return domain.AggregatedRate{}, apperrors.InvalidCurrency(result.Reason)
	}

	key := rateKey(base, target)
	if cached, ok := a.readFreshCache(ctx, key); ok {
		cached.Cached = true
		return cached, nil
	}

	return a.refresh(ctx, base, target, key)
}

// RefreshRate unconditionally fans out, fuses, writes the cache and
// publishes, skipping the fresh-cache read GetRate uses. The ingestor
// drives this path so a scheduled cycle always produces a publish per
// configured pair, rather than silently skipping pairs whose cache entry
// a prior cycle just refreshed.
func (a *Aggregator) RefreshRate(ctx context.Context, base, target string) (domain.AggregatedRate, error) {
	result := a.validator.Validate(ctx, base, target)
	if !result.Valid {
		return domain.AggregatedRate{}, apperrors.InvalidCurrency(result.Reason)
	}
	return a.refresh(ctx, base, target, rateKey(base, target))
}

func (a *Aggregator) refresh(ctx context.Context, base, target, key string) (domain.AggregatedRate, error) {
	primaryResult, secondaryResults := a.fanOut(ctx, base, target)

	fused, err := a.fuse(ctx, base, target, primaryResult, secondaryResults)
	if err != nil {
		return domain.AggregatedRate{}, err
	}

	a.writeFreshCache(ctx, key, fused)
	a.publish(ctx, fused)
	a.logCallResults(ctx, primaryResult, secondaryResults)

	return fused, nil
}

// GetAllRatesForBase fuses a rate for every configured target against
// base, reusing the same per-target fuse+cache+log helper the single-pair
// path uses. Fresh-cache hits are returned without a redundant publish.
func (a *Aggregator) GetAllRatesForBase(ctx context.Context, base string, targets []string) map[string]domain.AggregatedRate {
	out := make(map[string]domain.AggregatedRate, len(targets))
	for _, target := range targets {
		if target == base {
			continue
		}
		rate, err := a.GetRate(ctx, base, target)
		if err != nil {
			logger.LogAggregationFallback(ctx, base+"/"+target, "all-rates batch entry failed", logger.Fields{"error": err.Error()})
			continue
		}
		out[target] = rate
	}
	return out
}

// RefreshAllRatesForBase unconditionally refreshes and publishes every
// configured target against base. The ingestor's scheduled cycles use
// this instead of GetAllRatesForBase so every cycle produces a publish
// per pair regardless of the cache's current freshness.
func (a *Aggregator) RefreshAllRatesForBase(ctx context.Context, base string, targets []string) map[string]domain.AggregatedRate {
	out := make(map[string]domain.AggregatedRate, len(targets))
	for _, target := range targets {
		if target == base {
			continue
		}
		rate, err := a.RefreshRate(ctx, base, target)
		if err != nil {
			logger.LogAggregationFallback(ctx, base+"/"+target, "all-rates batch entry failed", logger.Fields{"error": err.Error()})
			continue
		}
		out[target] = rate
	}
	return out
}

func (a *Aggregator) readFreshCache(ctx context.Context, key string) (domain.AggregatedRate, bool) {
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		return domain.AggregatedRate{}, false
	}
	rate, err := DecodeRate(raw)
	if err != nil {
		return domain.AggregatedRate{}, false
	}
	return rate, true
}

func (a *Aggregator) writeFreshCache(ctx context.Context, key string, rate domain.AggregatedRate) {
	raw, err := EncodeRate(rate)
	if err != nil {
		logger.Warn("aggregator: cache encode failed", logger.Fields{"error": err.Error()})
		return
	}
	if err := a.cache.Set(ctx, key, raw, a.rateTTL); err != nil {
		logger.Warn("aggregator: cache write failed", logger.Fields{"key": key, "error": err.Error()})
	}
}

func (a *Aggregator) publish(ctx context.Context, rate domain.AggregatedRate) {
	raw, err := EncodeRate(rate)
	if err != nil {
		return
	}
	if err := a.cache.Publish(ctx, broadcastChannel, raw); err != nil {
		logger.Warn("aggregator: publish failed", logger.Fields{"pair": rate.Pair(), "error": err.Error()})
	}
}

// fanOut launches the primary and every secondary provider concurrently,
// each through its own breaker, and waits for all to complete.
func (a *Aggregator) fanOut(ctx context.Context, base, target string) (domain.ProviderCallResult, []domain.ProviderCallResult) {
	secondaryResults := make([]domain.ProviderCallResult, len(a.secondaries))

	g, gctx := errgroup.WithContext(ctx)
	var primaryResult domain.ProviderCallResult

	g.Go(func() error {
		primaryResult = a.callThroughBreaker(gctx, a.primary, base, target)
		return nil
	})

	for i, slot := range a.secondaries {
		i, slot := i, slot
		g.Go(func() error {
			secondaryResults[i] = a.callThroughBreaker(gctx, slot, base, target)
			return nil
		})
	}

	// Errors are never returned by the goroutines themselves (failures
	// are encoded in ProviderCallResult), so Wait only surfaces context
	// cancellation.
	_ = g.Wait()

	return primaryResult, secondaryResults
}

func (a *Aggregator) callThroughBreaker(ctx context.Context, slot ProviderSlot, base, target string) domain.ProviderCallResult {
	result, err := slot.breaker.Call(ctx, func(ctx context.Context) (domain.ProviderCallResult, error) {
		return slot.client.GetRate(ctx, base, target)
	})
	if err != nil {
		return domain.ProviderCallResult{
			Provider: slot.client.Name(),
			Success:  false,
			Error:    err.Error(),
		}
	}
	return result
}

func rateKey(base, target string) string {
	return "rates:" + base + ":" + target
}
