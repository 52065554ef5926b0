package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/hxuan190/ratefusion/internal/domain"
	apperrors "github.com/hxuan190/ratefusion/internal/shared/errors"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/shopspring/decimal"
)

// fuse applies the deterministic fusion policy to one primary result and
// zero or more secondary results, falling back to the durable store's
// stale cache when every provider failed.
func (a *Aggregator) fuse(ctx context.Context, base, target string, primary domain.ProviderCallResult, secondaries []domain.ProviderCallResult) (domain.AggregatedRate, error) {
	pair := base + "/" + target
	now := time.Now().UTC()

	var okSecondaries []domain.ProviderCallResult
	for _, s := range secondaries {
		if s.Success && s.Rate != nil {
			okSecondaries = append(okSecondaries, s)
		}
	}

	primaryOK := primary.Success && primary.Rate != nil

	switch {
	case primaryOK && len(okSecondaries) == 0:
		return domain.AggregatedRate{
			Base: base, Target: target,
			Rate:        primary.Rate.Rate,
			Confidence:  domain.ConfidenceHigh,
			SourcesUsed: []string{primary.Provider},
			PrimaryUsed: true,
			Timestamp:   now,
		}, nil

	case primaryOK:
		values := make([]decimal.Decimal, 0, len(okSecondaries)+1)
		sources := make([]string, 0, len(okSecondaries)+1)
		values = append(values, primary.Rate.Rate)
		sources = append(sources, primary.Provider)
		for _, s := range okSecondaries {
			values = append(values, s.Rate.Rate)
			sources = append(sources, s.Provider)
		}

		mean := meanOf(values)
		if maxDeviation(values, mean).LessThan(a.deviationThreshold) {
			return domain.AggregatedRate{
				Base: base, Target: target,
				Rate:        mean,
				Confidence:  domain.ConfidenceHigh,
				SourcesUsed: sources,
				PrimaryUsed: true,
				Timestamp:   now,
			}, nil
		}

		logger.LogAggregationFallback(ctx, pair, "high deviation, reverting to primary", logger.Fields{
			"max_deviation": maxDeviation(values, mean).String(),
			"threshold":     a.deviationThreshold.String(),
		})
		return domain.AggregatedRate{
			Base: base, Target: target,
			Rate:        primary.Rate.Rate,
			Confidence:  domain.ConfidenceHigh,
			SourcesUsed: []string{primary.Provider},
			PrimaryUsed: true,
			Timestamp:   now,
			Warnings:    []string{"high deviation among provider quotes"},
		}, nil

	case len(okSecondaries) > 0:
		values := make([]decimal.Decimal, 0, len(okSecondaries))
		sources := make([]string, 0, len(okSecondaries))
		for _, s := range okSecondaries {
			values = append(values, s.Rate.Rate)
			sources = append(sources, s.Provider)
		}
		return domain.AggregatedRate{
			Base: base, Target: target,
			Rate:        meanOf(values),
			Confidence:  domain.ConfidenceMedium,
			SourcesUsed: sources,
			PrimaryUsed: false,
			Timestamp:   now,
			Warnings:    []string{"primary provider unavailable"},
		}, nil

	default:
		return a.staleFallback(ctx, base, target, now)
	}
}

func (a *Aggregator) staleFallback(ctx context.Context, base, target string, now time.Time) (domain.AggregatedRate, error) {
	pair := base + "/" + target
	stale, found, err := a.repo.LatestSuccessful(ctx, base, target)
	if err != nil {
		logger.Warn("aggregator: stale cache lookup failed", logger.Fields{"pair": pair, "error": err.Error()})
	}
	if !found {
		return domain.AggregatedRate{}, apperrors.NoRateAvailable(pair)
	}

	age := now.Sub(stale.Timestamp)
	return domain.AggregatedRate{
		Base: base, Target: target,
		Rate:        stale.Rate,
		Confidence:  domain.ConfidenceLow,
		SourcesUsed: []string{stale.Provider},
		PrimaryUsed: false,
		Cached:      true,
		Timestamp:   now,
		Warnings: []string{
			"all providers unavailable",
			fmt.Sprintf("stale rate is %s old", age.Round(time.Second)),
		},
	}, nil
}

func meanOf(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// maxDeviation returns max(|v - mean|) across values.
func maxDeviation(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	max := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean).Abs()
		if d.GreaterThan(max) {
			max = d
		}
	}
	return max
}

func (a *Aggregator) logCallResults(ctx context.Context, primary domain.ProviderCallResult, secondaries []domain.ProviderCallResult) {
	all := append([]domain.ProviderCallResult{primary}, secondaries...)
	for _, result := range all {
		if result.Rate != nil {
			if err := a.repo.AppendRateHistory(ctx, *result.Rate); err != nil {
				logger.Warn("aggregator: rate history append failed", logger.Fields{"provider": result.Provider, "error": err.Error()})
			}
		}
		if err := a.repo.LogAPICall(ctx, result); err != nil {
			logger.Warn("aggregator: api call log failed", logger.Fields{"provider": result.Provider, "error": err.Error()})
		}
	}
}
