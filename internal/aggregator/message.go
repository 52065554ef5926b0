package aggregator

import (
	"encoding/json"
	"time"

	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/shopspring/decimal"
)

// wireRate is the JSON shape used both for the fresh-cache entry and the
// rates:broadcast pub/sub payload.
type wireRate struct {
	Base        string    `json:"base_currency"`
	Target      string    `json:"target_currency"`
	Pair        string    `json:"pair"`
	Rate        string    `json:"rate"`
	Confidence  string    `json:"confidence_level"`
	SourcesUsed []string  `json:"sources_used"`
	PrimaryUsed bool      `json:"primary_used"`
	Cached      bool      `json:"cached"`
	Timestamp   time.Time `json:"timestamp"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// EncodeRate serializes an AggregatedRate into the cache/pub-sub wire
// shape used across the rate pipeline.
func EncodeRate(r domain.AggregatedRate) (string, error) {
	w := wireRate{
		Base:        r.Base,
		Target:      r.Target,
		Pair:        r.Pair(),
		Rate:        r.Rate.String(),
		Confidence:  string(r.Confidence),
		SourcesUsed: r.SourcesUsed,
		PrimaryUsed: r.PrimaryUsed,
		Cached:      r.Cached,
		Timestamp:   r.Timestamp,
		Warnings:    r.Warnings,
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeRate parses the wire shape back into an AggregatedRate.
func DecodeRate(raw string) (domain.AggregatedRate, error) {
	var w wireRate
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return domain.AggregatedRate{}, err
	}
	rate, err := decimal.NewFromString(w.Rate)
	if err != nil {
		return domain.AggregatedRate{}, err
	}
	return domain.AggregatedRate{
		Base:        w.Base,
		Target:      w.Target,
		Rate:        rate,
		Confidence:  domain.Confidence(w.Confidence),
		SourcesUsed: w.SourcesUsed,
		PrimaryUsed: w.PrimaryUsed,
		Cached:      w.Cached,
		Timestamp:   w.Timestamp,
		Warnings:    w.Warnings,
	}, nil
}
