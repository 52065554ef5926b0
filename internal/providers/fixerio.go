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

// FixerIO adapts fixer.io's {success, rates, error:{info}} envelope and
// query-parameter access_key auth.
type FixerIO struct {
	baseClient
}

// NewFixerIO builds a fixer.io adapter from its configured credentials.
func NewFixerIO(cfg config.ProviderConfig) *FixerIO {
	return &FixerIO{baseClient: newBaseClient("fixerio", cfg)}
}

type fixerEnvelope struct {
	Success   bool                       `json:"success"`
	Timestamp int64                      `json:"timestamp"`
	Base      string                     `json:"base"`
	Rates     map[string]json.Number     `json:"rates"`
	Error     *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func (f *FixerIO) GetRate(ctx context.Context, base, target string) (domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest?access_key=%s&base=%s&symbols=%s", f.baseURL, f.apiKey, base, target)
	return f.timedGet(ctx, "/latest", url, func(resp *http.Response) (domain.RateRecord, error) {
		return decodeFixerSingle(resp, base, target)
	})
}

func decodeFixerSingle(resp *http.Response, base, target string) (domain.RateRecord, error) {
	var env fixerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return domain.RateRecord{}, fmt.Errorf("fixerio: decode response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return domain.RateRecord{}, fmt.Errorf("fixerio: %s", env.Error.Info)
		}
		return domain.RateRecord{}, fmt.Errorf("fixerio: unknown error")
	}

	raw, ok := env.Rates[target]
	if !ok {
		return domain.RateRecord{}, fmt.Errorf("target currency %s not found", target)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return domain.RateRecord{}, fmt.Errorf("fixerio: unparseable rate for %s: %w", target, err)
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
		Provider:  "fixerio",
		Success:   true,
	}, nil
}

// GetAllRates decodes the envelope itself rather than reusing timedGet,
// since timedGet's shape carries one RateRecord per call and this needs
// one ProviderCallResult per target.
func (f *FixerIO) GetAllRates(ctx context.Context, base string) ([]domain.ProviderCallResult, error) {
	url := fmt.Sprintf("%s/latest?access_key=%s&base=%s", f.baseURL, f.apiKey, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}
	start := time.Now()
	resp, err := f.http.Do(req)
	if err != nil {
		return []domain.ProviderCallResult{{
			Provider: f.name,
			Endpoint: "/latest",
			Success:  false,
			Error:    err.Error(),
		}}, nil
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()

	var env fixerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || !env.Success {
		msg := "fixerio: decode failure"
		if env.Error != nil {
			msg = env.Error.Info
		}
		return []domain.ProviderCallResult{{
			Provider:   f.name,
			Endpoint:   "/latest",
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
			Provider:  "fixerio",
			Success:   true,
		}
		results = append(results, domain.ProviderCallResult{
			Provider:   f.name,
			Endpoint:   "/latest",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Success:    true,
			Rate:       &rec,
		})
	}
	return results, nil
}

func (f *FixerIO) GetSupportedCurrencies(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/symbols?access_key=%s", f.baseURL, f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Success bool                      `json:"success"`
		Symbols map[string]string         `json:"symbols"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(body.Symbols))
	for code := range body.Symbols {
		codes = append(codes, code)
	}
	return codes, nil
}
