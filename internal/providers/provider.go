// Package providers adapts each third-party rate API's wire format to the
// uniform ports.ProviderClient interface.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/domain"
)

// baseClient holds what every adapter needs: a bounded HTTP client, the
// provider's name/base URL/credential, and the timing+error-wrapping
// helper used by the fixer.io and openexchangerates GetRate
// implementations (CurrencyAPI issues its own request).
type baseClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

func newBaseClient(name string, cfg config.ProviderConfig) baseClient {
	return baseClient{
		name:    name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// timedGet issues an HTTP GET against url and returns the response body
// reader's caller-supplied decode, wrapped with latency and a uniform
// failed-call result on any transport error. decode receives the raw
// response and returns the parsed RateRecord (or an error to surface as
// a logical, not transport, failure).
func (b baseClient) timedGet(ctx context.Context, endpoint, url string, decode func(*http.Response) (domain.RateRecord, error)) (domain.ProviderCallResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ProviderCallResult{
			Provider: b.name,
			Endpoint: endpoint,
			Success:  false,
			Error:    err.Error(),
		}, nil
	}

	resp, err := b.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return domain.ProviderCallResult{
			Provider:  b.name,
			Endpoint:  endpoint,
			LatencyMS: latency,
			Success:   false,
			Error:     err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status < 200 || status >= 300 {
		return domain.ProviderCallResult{
			Provider:   b.name,
			Endpoint:   endpoint,
			StatusCode: status,
			LatencyMS:  latency,
			Success:    false,
			Error:      http.StatusText(status),
		}, nil
	}

	rate, err := decode(resp)
	if err != nil {
		// Transport succeeded but the payload signals a logical error:
		// the call result is still "success=false", never a Go error,
		// per the provider client's never-throws contract.
		return domain.ProviderCallResult{
			Provider:   b.name,
			Endpoint:   endpoint,
			StatusCode: status,
			LatencyMS:  latency,
			Success:    false,
			Error:      err.Error(),
		}, nil
	}

	return domain.ProviderCallResult{
		Provider:   b.name,
		Endpoint:   endpoint,
		StatusCode: status,
		LatencyMS:  latency,
		Success:    true,
		Rate:       &rate,
	}, nil
}

func (b baseClient) Name() string { return b.name }
