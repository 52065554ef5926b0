// Package wiring constructs the rate-aggregation dependency graph from an
// already-open cache client and durable store: providers -> breakers
// (sharing the cache client) -> currency validator -> aggregator. Both
// cmd/api and cmd/worker build from this single graph. Opening the store
// and the cache happens in the callers, which open the database before
// Redis; the broadcast hub (cmd/api) and the ingestor (cmd/worker) are
// also built by the callers, not here.
package wiring

import (
	"context"
	"fmt"

	"github.com/hxuan190/ratefusion/internal/aggregator"
	"github.com/hxuan190/ratefusion/internal/breaker"
	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/ports"
	"github.com/hxuan190/ratefusion/internal/providers"

	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/repository"
	"github.com/hxuan190/ratefusion/internal/validator"
)

// Graph is the fully-constructed dependency graph shared by cmd/api and
// cmd/worker.
type Graph struct {
	Repo       *repository.RateRepository
	Providers  map[string]ports.ProviderClient
	Breakers   map[string]ports.Breaker
	Validator  *validator.Validator
	Aggregator *aggregator.Aggregator
}

// Build constructs the graph from configuration and already-open cache
// and durable store handles.
func Build(ctx context.Context, cfg *config.Config, c cache.Cache, repo *repository.RateRepository) (*Graph, error) {
	providerClients := make(map[string]ports.ProviderClient, len(cfg.Providers.Configs))
	breakers := make(map[string]ports.Breaker, len(cfg.Providers.Configs))

	for id, providerCfg := range cfg.Providers.Configs {
		client, err := providers.New(id, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("wiring: provider %q: %w", id, err)
		}
		providerClients[id] = client
		breakers[id] = breaker.New(id, c, repo, cfg.Breaker, cfg.Cache.BreakerTTL)
	}

	primaryID := cfg.Providers.Primary
	primaryClient, ok := providerClients[primaryID]
	if !ok {
		return nil, fmt.Errorf("wiring: primary provider %q has no constructed client", primaryID)
	}

	allClients := make([]ports.ProviderClient, 0, len(providerClients))
	for _, pc := range providerClients {
		allClients = append(allClients, pc)
	}

	v := validator.New(c, repo, allClients, cfg.Cache.ValidationPosTTL, cfg.Cache.ValidationNegTTL)
	if err := v.EnsureFresh(ctx); err != nil {
		logger.Warn("wiring: initial currency catalog refresh failed", logger.Fields{"error": err.Error()})
	}

	var secondaries []aggregator.ProviderSlot
	for id, client := range providerClients {
		if id == primaryID {
			continue
		}
		secondaries = append(secondaries, aggregator.NewProviderSlot(client, breakers[id]))
	}

	agg := aggregator.New(
		c, repo, v,
		aggregator.NewProviderSlot(primaryClient, breakers[primaryID]),
		secondaries,
		cfg.Aggregator,
		cfg.Cache.RateTTL,
	)

	return &Graph{
		Repo:       repo,
		Providers:  providerClients,
		Breakers:   breakers,
		Validator:  v,
		Aggregator: agg,
	}, nil
}
