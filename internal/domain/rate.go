// Package domain holds the value types that flow through the rate
// aggregation pipeline: provider observations, the fused result, and the
// per-provider circuit breaker's state.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Confidence labels the provenance strength of an AggregatedRate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RateRecord is a single provider's quote for a currency pair.
type RateRecord struct {
	Base      string
	Target    string
	Rate      decimal.Decimal
	Timestamp time.Time
	Provider  string
	Success   bool
	Error     string
}

// ProviderCallResult is the outcome of one provider HTTP call, independent
// of whether the call itself succeeded at the transport level or the
// provider's payload signaled a logical failure.
type ProviderCallResult struct {
	Provider   string
	Endpoint   string
	StatusCode int
	LatencyMS  int64
	Success    bool
	Error      string
	Rate       *RateRecord
}

// AggregatedRate is the fused result of one or more provider observations
// for a pair.
type AggregatedRate struct {
	Base             string
	Target           string
	Rate             decimal.Decimal
	Confidence       Confidence
	SourcesUsed      []string
	PrimaryUsed      bool
	Cached           bool
	Timestamp        time.Time
	Warnings         []string
}

// Pair renders the canonical "BASE/TARGET" key used in cache keys and
// pub/sub messages.
func (a AggregatedRate) Pair() string {
	return a.Base + "/" + a.Target
}

// BreakerState enumerates the circuit breaker's three states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is the shared, cross-process state of a provider's
// circuit breaker.
type BreakerSnapshot struct {
	ProviderID  string
	State       BreakerState
	Failures    int
	LastFailure time.Time
}
