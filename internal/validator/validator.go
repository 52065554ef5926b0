// Package validator is the pre-flight currency-pair check run before the
// aggregator spends any I/O on providers.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// popularCurrencies seeds the hot set consulted before the full catalog.
var popularCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CAD": true,
	"AUD": true, "CHF": true, "CNY": true, "NGN": true, "ZAR": true,
}

// RefreshInterval is the default staleness window before the supported
// currency catalog is refreshed from providers.
const RefreshInterval = 7 * 24 * time.Hour

// Result is a validation outcome: valid or not, with an optional reason.
type Result struct {
	Valid  bool
	Reason string
}

type cacheEntry struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validator checks that a (base, target) pair is serviceable: cheaply,
// via a 3-tier lookup (validation cache -> hot set -> full catalog), and
// fails open on any unexpected error so the aggregator can still try.
type Validator struct {
	cache     cache.Cache
	repo      ports.RateRepository
	providers []ports.ProviderClient
	posTTL    time.Duration
	negTTL    time.Duration
}

// New builds a Validator. providers is consulted only during catalog
// refresh, never on the request path.
func New(c cache.Cache, repo ports.RateRepository, providers []ports.ProviderClient, posTTL, negTTL time.Duration) *Validator {
	return &Validator{cache: c, repo: repo, providers: providers, posTTL: posTTL, negTTL: negTTL}
}

// Validate checks whether base and target are both serviceable.
func (v *Validator) Validate(ctx context.Context, base, target string) Result {
	key := validationKey(base, target)

	if cached, ok := v.readCache(ctx, key); ok {
		return cached
	}

	if popularCurrencies[base] && popularCurrencies[target] {
		result := Result{Valid: true}
		v.writeCache(ctx, key, result)
		return result
	}

	codes, err := v.repo.SupportedCurrencies(ctx)
	if err != nil {
		logger.Warn("currency validator: catalog read failed, failing open", logger.Fields{
			"base": base, "target": target, "error": err.Error(),
		})
		return Result{Valid: true}
	}

	supported := make(map[string]bool, len(codes))
	for _, c := range codes {
		supported[c] = true
	}

	var unsupported []string
	if !supported[base] {
		unsupported = append(unsupported, base)
	}
	if !supported[target] {
		unsupported = append(unsupported, target)
	}

	result := Result{Valid: len(unsupported) == 0}
	if !result.Valid {
		result.Reason = fmt.Sprintf("unsupported currency: %s", strings.Join(unsupported, ", "))
	}
	v.writeCache(ctx, key, result)
	return result
}

func (v *Validator) readCache(ctx context.Context, key string) (Result, bool) {
	raw, err := v.cache.Get(ctx, key)
	if err != nil {
		return Result{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Result{}, false
	}
	return Result{Valid: entry.Valid, Reason: entry.Reason}, true
}

func (v *Validator) writeCache(ctx context.Context, key string, result Result) {
	ttl := v.posTTL
	if !result.Valid {
		ttl = v.negTTL
	}
	raw, err := json.Marshal(cacheEntry{Valid: result.Valid, Reason: result.Reason})
	if err != nil {
		return
	}
	if err := v.cache.Set(ctx, key, string(raw), ttl); err != nil {
		logger.Warn("currency validator: cache write failed", logger.Fields{"key": key, "error": err.Error()})
	}
}

// RefreshCatalog repopulates the supported-currency catalog by unioning
// each provider's supported list. Providers that fail contribute
// nothing; the refresh never fails outright.
func (v *Validator) RefreshCatalog(ctx context.Context) error {
	union := make(map[string]bool)
	for _, p := range v.providers {
		codes, err := p.GetSupportedCurrencies(ctx)
		if err != nil {
			logger.Warn("currency catalog refresh: provider failed", logger.Fields{
				"provider": p.Name(), "error": err.Error(),
			})
			continue
		}
		for _, c := range codes {
			union[c] = true
		}
	}
	for c := range popularCurrencies {
		union[c] = true
	}

	codes := make([]string, 0, len(union))
	for c := range union {
		codes = append(codes, c)
	}
	return v.repo.ReplaceSupportedCurrencies(ctx, codes, time.Now())
}

// EnsureFresh refreshes the catalog if it is empty or older than
// RefreshInterval.
func (v *Validator) EnsureFresh(ctx context.Context) error {
	age, exists, err := v.repo.CatalogAge(ctx)
	if err != nil {
		return err
	}
	if !exists || age > RefreshInterval {
		return v.RefreshCatalog(ctx)
	}
	return nil
}

func validationKey(base, target string) string {
	return fmt.Sprintf("currency_validation:%s_%s", base, target)
}
