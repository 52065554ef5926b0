package providers

import (
	"fmt"

	"github.com/hxuan190/ratefusion/internal/config"
	"github.com/hxuan190/ratefusion/internal/ports"
)

// New builds the ports.ProviderClient for a known provider id. Unknown
// ids are a startup-time configuration error, not a runtime one.
func New(id string, cfg config.ProviderConfig) (ports.ProviderClient, error) {
	switch id {
	case "fixerio":
		return NewFixerIO(cfg), nil
	case "openexchangerates":
		return NewOpenExchangeRates(cfg), nil
	case "currencyapi":
		return NewCurrencyAPI(cfg), nil
	default:
		return nil, fmt.Errorf("providers: unknown provider id %q", id)
	}
}
