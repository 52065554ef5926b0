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

// CurrencyAPI adapts currencyapi.com's {data: {TARGET: {value}}} envelope
// and header apikey auth.
type CurrencyAPI struct {
	baseClient
}

// NewCurrencyAPI builds a currencyapi.com adapter.
func NewCurrencyAPI(cfg config.ProviderConfig) *CurrencyAPI {
	return &CurrencyAPI{baseClient: newBaseClient("currencyapi", cfg)}
}

type currencyAPIEnvelope struct {
	Data map[string]struct {
		Code  string      `json:"code"`
		Value json.Number `json:"value"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *CurrencyAPI) doRequest(ctx context.Context, endpoint, url string) (*http.Response, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("apikey", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	return resp, time.Since(start).Milliseconds(), err
}

func (c *CurrencyAPI) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest?base_currency=%s&currencies=%s", c.baseURL, base, target)

	resp, latency, err := c.doRequest(ctx, "/latest", url)
	if err != nil {
		return domain.ProviderCallResult{
			Provider:  c.name,
			Endpoint:  "/latest",
			LatencyMS: latency,
			Success:   false,
			Error:     err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ProviderCallResult{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      http.StatusText(resp.StatusCode),
		}, nil
	}

	var env currencyAPIEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return domain.ProviderCallResult{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      fmt.Sprintf("currencyapi: decode response: %v", err),
		}, nil
	}

	entry, ok := env.Data[target]
	if !ok {
		msg := fmt.Sprintf("target currency %s not found", target)
		if env.Message != "" {
			msg = env.Message
		}
		return domain.ProviderCallResult{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      msg,
		}, nil
	}

	rate, err := decimal.NewFromString(entry.Value.String())
	if err != nil {
		return domain.ProviderCallResult{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      fmt.Sprintf("currencyapi: unparseable rate for %s: %v", target, err),
		}, nil
	}

	rec := domain.RateRecord{
		Base:      base,
		Target:    target,
		Rate:      rate,
		Timestamp: time.Now().UTC(),
		Provider:  "currencyapi",
		Success:   true,
	}
	return domain.ProviderCallResult{
		Provider:   c.name,
		Endpoint:   "/latest",
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Success:    true,
		Rate:       &rec,
	}, nil
}

func (c *CurrencyAPI) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest?base_currency=%s", c.baseURL, base)

	resp, latency, err := c.doRequest(ctx, "/latest", url)
	if err != nil {
		return []domain.ProviderCallResult{{
			Provider:  c.name,
			Endpoint:  "/latest",
			LatencyMS: latency,
			Success:   false,
			Error:     err.Error(),
		}}, nil
	}
	defer resp.Body.Close()

	var env currencyAPIEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return []domain.ProviderCallResult{{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    false,
			Error:      fmt.Sprintf("currencyapi: decode response: %v", err),
		}}, nil
	}

	ts := time.Now().UTC()
	results := make([]domain.ProviderCallResult, 0, len(env.Data))
	for target, entry := range env.Data {
		rate, err := decimal.NewFromString(entry.Value.String())
		if err != nil {
			continue
		}
		rec := domain.RateRecord{
			Base:      base,
			Target:    target,
			Rate:      rate,
			Timestamp: ts,
			Provider:  "currencyapi",
			Success:   true,
		}
		results = append(results, domain.ProviderCallResult{
			Provider:   c.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    true,
			Rate:       &rec,
		})
	}
	return results, nil
}

func (c *CurrencyAPI) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/currencies", c.baseURL)
	resp, _, err := c.doRequest(ctx, "/currencies", url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env currencyAPIEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(env.Data))
	for code := range env.Data {
		codes = append(codes, code)
	}
	return codes, nil
}
