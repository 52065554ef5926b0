package repository

import "time"

// Provider is the durable record of a configured rate provider.
type Provider struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"uniqueIndex;size:64"`
	Priority int
	BaseURL  string `gorm:"size:256"`
	Enabled  bool
}

func (Provider) TableName() string { return "providers" }

// CurrencyPair is a distinct (base, target) conversion direction seen by
// the system.
type CurrencyPair struct {
	ID     uint   `gorm:"primaryKey"`
	Base   string `gorm:"size:5;index:idx_currency_pairs_base_target,unique"`
	Target string `gorm:"size:5;index:idx_currency_pairs_base_target,unique"`
}

func (CurrencyPair) TableName() string { return "currency_pairs" }

// ExchangeRateHistory is one provider observation for a pair, used as the
// stale-cache fallback when every live provider fails.
type ExchangeRateHistory struct {
	ID         uint `gorm:"primaryKey"`
	PairID     uint `gorm:"index"`
	ProviderID uint
	Rate       string `gorm:"size:64"`
	FetchedAt  time.Time `gorm:"index"`
	Success    bool
	Confidence string `gorm:"size:16"`
}

func (ExchangeRateHistory) TableName() string { return "exchange_rate_history" }

// APICallLog records every provider HTTP call for observability.
type APICallLog struct {
	ID               uint `gorm:"primaryKey"`
	ProviderID       uint
	Endpoint         string `gorm:"size:256"`
	StatusCode       int
	ResponseTimeMS   int64
	Success          bool
	ErrorMessage     string `gorm:"size:512"`
	CalledAt         time.Time `gorm:"index"`
}

func (APICallLog) TableName() string { return "api_call_log" }

// BreakerLog records every circuit breaker state transition for audit.
type BreakerLog struct {
	ID              uint `gorm:"primaryKey"`
	ProviderID      uint
	PrevState       string `gorm:"size:16"`
	NewState        string `gorm:"size:16"`
	FailureCount    int
	Reason          string `gorm:"size:256"`
	TransitionedAt  time.Time `gorm:"index"`
}

func (BreakerLog) TableName() string { return "breaker_log" }

// SupportedCurrency is one entry in the serviceable-currency catalog.
type SupportedCurrency struct {
	Code     string `gorm:"primaryKey;size:5"`
	Name     string `gorm:"size:128"`
	LastSeen time.Time
}

func (SupportedCurrency) TableName() string { return "supported_currencies" }
