package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/shopspring/decimal"
)

// OpenExchangeRates adapts openexchangerates.org's {rates, timestamp}
// envelope (Unix-seconds timestamp) and query-parameter app_id auth.
type OpenExchangeRates struct {
	baseClient
}

// NewOpenExchangeRates builds an openexchangerates.org adapter.
func NewOpenExchangeRates(cfg config.ProviderConfig) *OpenExchangeRates {
	return &OpenExchangeRates{baseClient: newBaseClient("openexchangerates", cfg)}
}

type oxrEnvelope struct {
	Timestamp int64                  `json:"timestamp"`
	Base      string                 `json:"base"`
	Rates     map[string]json.Number `json:"rates"`
	Error     bool                   `json:"error"`
	Message   string                 `json:"message"`
	Desc      string                 `json:"description"`
}

func (o *OpenExchangeRates) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest.json?app_id=%s&base=%s&symbols=%s", o.baseURL, o.apiKey, base, target)
	return o.timedGet(ctx, "/latest.json", url, func(resp *http.Response) (domain.RateRecord, error) {
		return decodeOXRSingle(resp, base, target)
	})
}

func decodeOXRSingle(resp *http.Response, base, target string) (domain.RateRecord, error) {
	var env oxrEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return domain.RateRecord{}, fmt.Errorf("openexchangerates: decode response: %w", err)
	}
	if env.Error {
		return domain.RateRecord{}, fmt.Errorf("openexchangerates: %s: %s", env.Message, env.Desc)
	}

	raw, ok := env.Rates[target]
	if !ok {
		return domain.RateRecord{}, fmt.Errorf("target currency %s not found", target)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return domain.RateRecord{}, fmt.Errorf("openexchangerates: unparseable rate for %s: %w", target, err)
	}

	ts := time.Now()
	if env.Timestamp > 0 {
		ts = time.Unix(env.Timestamp, 0).UTC()
	}

	return domain.RateRecord{
		Base:      base,
		Target:    target,
		Rate:      rate,
		Timestamp: ts,
		Provider:  "openexchangerates",
		Success:   true,
	}, nil
}

func (o *OpenExchangeRates) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest.json?app_id=%s&base=%s", o.baseURL, o.apiKey, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}
	start := time.Now()
	resp, err := o.http.Do(req)
	if err != nil {
		return []domain.ProviderCallResult{{
			Provider: o.name,
			Endpoint: "/latest.json",
			Success:  false,
			Error:    err.Error(),
		}}, nil
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()

	var env oxrEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error {
		msg := "openexchangerates: decode failure"
		if env.Message != "" {
			msg = env.Message + ": " + env.Desc
		}
		return []domain.ProviderCallResult{{
			Provider:   o.name,
			Endpoint:   "/latest.json",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      msg,
		}}, nil
	}

	ts := time.Now()
	if env.Timestamp > 0 {
		ts = time.Unix(env.Timestamp, 0).UTC()
	}

	results := make([]domain.ProviderCallResult, 0, len(env.Rates))
	for target, raw := range env.Rates {
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		rec := domain.RateRecord{
			Base:      base,
			Target:    target,
			Rate:      rate,
			Timestamp: ts,
			Provider:  "openexchangerates",
			Success:   true,
		}
		results = append(results, domain.ProviderCallResult{
			Provider:   o.name,
			Endpoint:   "/latest.json",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    true,
			Rate:       &rec,
		})
	}
	return results, nil
}

func (o *OpenExchangeRates) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/currencies.json?app_id=%s", o.baseURL, o.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(body))
	for code := range body {
		codes = append(codes, code)
	}
	return codes, nil
}
