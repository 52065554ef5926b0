// Package breaker implements a per-provider circuit breaker whose state is
// shared across process replicas via the cache layer, so every API
// instance observes the same circuit.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/domain"
	apperrors "github.com/hxuan190/ratefusion/internal/shared/errors"

	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// Breaker is a Redis-backed circuit breaker for a single provider. The
// consecutive-success counter used during HALF_OPEN probing is kept
// in-process only; it is a best-effort accelerator, not a correctness
// requirement, since the breaker state itself lives in the cache.
type Breaker struct {
	providerID string
	cache      cache.Cache
	repo       ports.RateRepository
	cfg        config.BreakerConfig
	ttl        time.Duration

	mu        sync.Mutex
	successes int
}

// New creates a circuit breaker for providerID.
func New(providerID string, c cache.Cache, repo ports.RateRepository, cfg config.BreakerConfig, ttl time.Duration) *Breaker {
	return &Breaker{
		providerID: providerID,
		cache:      c,
		repo:       repo,
		cfg:        cfg,
		ttl:        ttl,
	}
}

func (b *Breaker) ProviderID() string { return b.providerID }

// Call admits or rejects the call based on current state, invokes fn when
// admitted, and records the outcome.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (domain.ProviderCallResult, error)) (domain.ProviderCallResult, error) {
	snapshot, err := b.readState(ctx)
	if err != nil {
		// Fail open on a cache read error: default to CLOSED so
		// availability is preferred over strict breaker correctness.
		logger.Warn("breaker state read failed, defaulting to CLOSED", logger.Fields{
			"provider": b.providerID,
			"error":    err.Error(),
		})
		snapshot = domain.BreakerSnapshot{ProviderID: b.providerID, State: domain.BreakerClosed}
	}

	switch snapshot.State {
	case domain.BreakerOpen:
		if !b.cooldownElapsed(snapshot) {
			return domain.ProviderCallResult{}, apperrors.BreakerOpen(b.providerID)
		}
		// Cooldown elapsed: proceed as a HALF_OPEN probe.
		b.transition(ctx, snapshot, domain.BreakerHalfOpen, snapshot.Failures, "cooldown elapsed, probing")
		snapshot.State = domain.BreakerHalfOpen
	case domain.BreakerHalfOpen, domain.BreakerClosed:
		// proceed
	}

	result, callErr := fn(ctx)
	success := callErr == nil && result.Success

	if success {
		b.onSuccess(ctx, snapshot)
	} else {
		b.onFailure(ctx, snapshot)
	}

	return result, callErr
}

func (b *Breaker) cooldownElapsed(snapshot domain.BreakerSnapshot) bool {
	if snapshot.LastFailure.IsZero() {
		// No stamp recorded (expired or never set): fail-open, treat as
		// elapsed per spec's cooldown-check rule.
		return true
	}
	return time.Since(snapshot.LastFailure) >= b.cfg.RecoveryTimeout
}

func (b *Breaker) onSuccess(ctx context.Context, snapshot domain.BreakerSnapshot) {
	switch snapshot.State {
	case domain.BreakerHalfOpen:
		b.mu.Lock()
		b.successes++
		successes := b.successes
		b.mu.Unlock()

		if successes >= b.cfg.SuccessThreshold {
			b.mu.Lock()
			b.successes = 0
			b.mu.Unlock()
			b.transition(ctx, snapshot, domain.BreakerClosed, 0, "success threshold reached")
		}
		// else stays HALF_OPEN; nothing to write, state unchanged.
	default:
		// CLOSED + success: reset failure count.
		if snapshot.Failures != 0 {
			b.writeState(ctx, domain.BreakerClosed, 0, time.Time{})
		}
	}
}

func (b *Breaker) onFailure(ctx context.Context, snapshot domain.BreakerSnapshot) {
	now := time.Now()

	switch snapshot.State {
	case domain.BreakerHalfOpen:
		b.mu.Lock()
		b.successes = 0
		b.mu.Unlock()
		b.transition(ctx, snapshot, domain.BreakerOpen, snapshot.Failures, "failure during half-open probe")
		return
	default:
		failures, err := b.cache.IncrWithExpire(ctx, failuresKey(b.providerID), b.ttl)
		if err != nil {
			logger.Warn("breaker failure counter increment failed", logger.Fields{
				"provider": b.providerID,
				"error":    err.Error(),
			})
			failures = int64(snapshot.Failures + 1)
		}

		if int(failures) >= b.cfg.FailureThreshold {
			b.writeState(ctx, domain.BreakerOpen, int(failures), now)
			b.logTransition(ctx, snapshot.State, domain.BreakerOpen, int(failures), "failure threshold reached")
		} else {
			b.writeState(ctx, domain.BreakerClosed, int(failures), now)
		}
	}
}

func (b *Breaker) transition(ctx context.Context, from domain.BreakerSnapshot, to domain.BreakerState, failures int, reason string) {
	var lastFailure time.Time
	if to == domain.BreakerOpen {
		lastFailure = time.Now()
	}
	b.writeState(ctx, to, failures, lastFailure)
	b.logTransition(ctx, from.State, to, failures, reason)
}

func (b *Breaker) writeState(ctx context.Context, state domain.BreakerState, failures int, lastFailure time.Time) {
	snapshot := cache.BreakerSnapshot{
		State:       string(state),
		Failures:    failures,
		LastFailure: lastFailure,
	}
	if err := b.cache.SetBreakerState(ctx, b.providerID, snapshot, b.ttl); err != nil {
		logger.Warn("breaker state write failed", logger.Fields{
			"provider": b.providerID,
			"state":    string(state),
			"error":    err.Error(),
		})
	}
}

func (b *Breaker) logTransition(ctx context.Context, from, to domain.BreakerState, failures int, reason string) {
	logger.LogBreakerTransition(ctx, b.providerID, string(from), string(to), reason)

	if b.repo == nil {
		return
	}
	// Audit row; must never block the transition it documents.
	if err := b.repo.LogBreakerTransition(ctx, b.providerID, from, to, failures, reason); err != nil {
		logger.Warn("breaker transition audit log failed", logger.Fields{
			"provider": b.providerID,
			"error":    err.Error(),
		})
	}
}

func (b *Breaker) readState(ctx context.Context) (domain.BreakerSnapshot, error) {
	snap, err := b.cache.GetBreakerState(ctx, b.providerID)
	if err == cache.ErrNotFound {
		return domain.BreakerSnapshot{ProviderID: b.providerID, State: domain.BreakerClosed}, nil
	}
	if err != nil {
		return domain.BreakerSnapshot{}, err
	}
	return domain.BreakerSnapshot{
		ProviderID:  b.providerID,
		State:       domain.BreakerState(snap.State),
		Failures:    snap.Failures,
		LastFailure: snap.LastFailure,
	}, nil
}

// Snapshot returns the breaker's current state for health/admin reporting.
func (b *Breaker) Snapshot(ctx context.Context) (domain.BreakerSnapshot, error) {
	return b.readState(ctx)
}

// Reset force-closes the breaker, an operator action exposed via the admin
// surface.
func (b *Breaker) Reset(ctx context.Context) error {
	snapshot, _ := b.readState(ctx)
	b.mu.Lock()
	b.successes = 0
	b.mu.Unlock()
	b.writeState(ctx, domain.BreakerClosed, 0, time.Time{})
	b.logTransition(ctx, snapshot.State, domain.BreakerClosed, 0, "manual reset")
	return nil
}

func failuresKey(providerID string) string {
	return "breaker:" + providerID + ":failures"
}
