// Package ingestor drives the aggregator for a configured base/target
// currency set on a fixed interval, keeping the fresh cache warm so the
// user-facing read path almost always hits.
package ingestor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hxuan190/ratefusion/internal/aggregator"
	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
)

// Ingestor runs periodic update cycles over a declared working set of
// (base, target) pairs.
type Ingestor struct {
	aggregator *aggregator.Aggregator
	bases      []string
	targets    []string
	interval   time.Duration

	stopping atomic.Bool
}

// New builds an Ingestor from its configuration.
func New(agg *aggregator.Aggregator, cfg config.IngestorConfig) *Ingestor {
	return &Ingestor{
		aggregator: agg,
		bases:      cfg.BaseCurrencies,
		targets:    cfg.TargetCurrencies,
		interval:   cfg.UpdateInterval,
	}
}

// Stop requests the run loop exit after its current cycle. Safe to call
// from any goroutine, any number of times.
func (in *Ingestor) Stop() {
	in.stopping.Store(true)
}

// Run blocks, executing one cycle every configured interval until ctx is
// cancelled or Stop is called. A panic inside one cycle is recovered,
// logged critical, and the loop continues on the next tick.
func (in *Ingestor) Run(ctx context.Context) {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	in.runCycleGuarded(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if in.stopping.Load() {
				return
			}
			in.runCycleGuarded(ctx)
		}
	}
}

// runCycleGuarded wraps RunCycle with panic recovery so a single bad
// cycle never kills the ingestor process.
func (in *Ingestor) runCycleGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogCycleFailureCritical(ctx, "panic during ingestor cycle", recoverErr(r))
		}
	}()
	in.RunCycle(ctx)
}

func recoverErr(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicValue{r}
}

type panicValue struct{ v interface{} }

func (p *panicValue) Error() string { return "panic: recovered non-error value" }

// RunCycle executes exactly one pass over every configured base
// currency, fanning out across bases concurrently. Exported so a
// scheduler (asynq task handler, or a test) can drive single cycles
// directly.
func (in *Ingestor) RunCycle(ctx context.Context) {
	start := time.Now()

	type cycleResult struct {
		attempted, succeeded int
	}
	results := make(chan cycleResult, len(in.bases))

	for _, base := range in.bases {
		base := base
		go func() {
			rates := in.aggregator.RefreshAllRatesForBase(ctx, base, in.targets)
			attempted := 0
			for _, target := range in.targets {
				if target != base {
					attempted++
				}
			}
			results <- cycleResult{attempted: attempted, succeeded: len(rates)}
		}()
	}

	var attempted, succeeded int
	for range in.bases {
		r := <-results
		attempted += r.attempted
		succeeded += r.succeeded
	}

	logger.LogCycleSummary(ctx, attempted, succeeded, attempted-succeeded, time.Since(start).Milliseconds())
}
