// Package repository is the durable store for rate history, provider
// call observability, breaker transitions, and the supported-currency
// catalog. GORM models back simple upserts; sqlx carries the hand-rolled
// query paths (history scans, stale-fallback lookups) where GORM's query
// builder would obscure the index being hit, mirroring the split the
// teacher repo draws between ORM-backed models and sqlx repositories.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hxuan190/ratefusion/internal/domain"
)

// RateRepository implements ports.RateRepository against Postgres.
type RateRepository struct {
	gormDB *gorm.DB
	sqlxDB *sqlx.DB
}

// New builds a RateRepository from an established connection pool.
func New(gormDB *gorm.DB, db *sql.DB) *RateRepository {
	return &RateRepository{
		gormDB: gormDB,
		sqlxDB: sqlx.NewDb(db, "postgres"),
	}
}

func (r *RateRepository) getOrCreateProvider(ctx context.Context, name string) (uint, error) {
	var p Provider
	err := r.gormDB.WithContext(ctx).
		Where(Provider{Name: name}).
		Attrs(Provider{Enabled: true}).
		FirstOrCreate(&p).Error
	return p.ID, err
}

func (r *RateRepository) getOrCreatePair(ctx context.Context, base, target string) (uint, error) {
	var pair CurrencyPair
	err := r.gormDB.WithContext(ctx).
		Where(CurrencyPair{Base: base, Target: target}).
		FirstOrCreate(&pair).Error
	return pair.ID, err
}

// AppendRateHistory records one rate observation.
func (r *RateRepository) AppendRateHistory(ctx context.Context, rec domain.RateRecord) error {
	providerID, err := r.getOrCreateProvider(ctx, rec.Provider)
	if err != nil {
		return err
	}
	pairID, err := r.getOrCreatePair(ctx, rec.Base, rec.Target)
	if err != nil {
		return err
	}

	row := ExchangeRateHistory{
		PairID:     pairID,
		ProviderID: providerID,
		Rate:       rec.Rate.String(),
		FetchedAt:  rec.Timestamp,
		Success:    rec.Success,
	}
	return r.gormDB.WithContext(ctx).Create(&row).Error
}

// LatestSuccessful returns the most recent successful observation for a
// pair across any provider, the stale-cache fallback row.
func (r *RateRepository) LatestSuccessful(ctx context.Context, base, target string) (domain.RateRecord, bool, error) {
	const query = `
		SELECT h.rate, h.fetched_at, p.name AS provider_name
		FROM exchange_rate_history h
		JOIN currency_pairs cp ON cp.id = h.pair_id
		JOIN providers p ON p.id = h.provider_id
		WHERE cp.base = $1 AND cp.target = $2 AND h.success = true
		ORDER BY h.fetched_at DESC
		LIMIT 1`

	var row struct {
		Rate         string    `db:"rate"`
		FetchedAt    time.Time `db:"fetched_at"`
		ProviderName string    `db:"provider_name"`
	}

	err := r.sqlxDB.GetContext(ctx, &row, query, base, target)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RateRecord{}, false, nil
	}
	if err != nil {
		return domain.RateRecord{}, false, err
	}

	rate, err := decimal.NewFromString(row.Rate)
	if err != nil {
		return domain.RateRecord{}, false, err
	}

	return domain.RateRecord{
		Base:      base,
		Target:    target,
		Rate:      rate,
		Timestamp: row.FetchedAt,
		Provider:  row.ProviderName,
		Success:   true,
	}, true, nil
}

// LogAPICall records one provider HTTP call for observability.
func (r *RateRepository) LogAPICall(ctx context.Context, result domain.ProviderCallResult) error {
	providerID, err := r.getOrCreateProvider(ctx, result.Provider)
	if err != nil {
		return err
	}

	row := APICallLog{
		ProviderID:     providerID,
		Endpoint:       result.Endpoint,
		StatusCode:     result.StatusCode,
		ResponseTimeMS: result.LatencyMS,
		Success:        result.Success,
		ErrorMessage:   result.Error,
		CalledAt:       time.Now().UTC(),
	}
	return r.gormDB.WithContext(ctx).Create(&row).Error
}

// LogBreakerTransition records a circuit breaker state change for audit.
// Errors here must never propagate as a reason to undo the transition
// the caller already applied.
func (r *RateRepository) LogBreakerTransition(ctx context.Context, providerID string, prev, next domain.BreakerState, failures int, reason string) error {
	pid, err := r.getOrCreateProvider(ctx, providerID)
	if err != nil {
		return err
	}

	row := BreakerLog{
		ProviderID:     pid,
		PrevState:      string(prev),
		NewState:       string(next),
		FailureCount:   failures,
		Reason:         reason,
		TransitionedAt: time.Now().UTC(),
	}
	return r.gormDB.WithContext(ctx).Create(&row).Error
}

// SupportedCurrencies returns the full serviceable-currency catalog.
func (r *RateRepository) SupportedCurrencies(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.sqlxDB.SelectContext(ctx, &codes, `SELECT code FROM supported_currencies`)
	return codes, err
}

// ReplaceSupportedCurrencies overwrites the catalog with codes, stamping
// each with seenAt.
func (r *RateRepository) ReplaceSupportedCurrencies(ctx context.Context, codes []string, seenAt time.Time) error {
	return r.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM supported_currencies`).Error; err != nil {
			return err
		}
		for _, code := range codes {
			row := SupportedCurrency{Code: code, LastSeen: seenAt}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CatalogAge returns how long ago the catalog was last refreshed.
func (r *RateRepository) CatalogAge(ctx context.Context) (time.Duration, bool, error) {
	var lastSeen sql.NullTime
	err := r.sqlxDB.GetContext(ctx, &lastSeen, `SELECT MAX(last_seen) FROM supported_currencies`)
	if err != nil {
		return 0, false, err
	}
	if !lastSeen.Valid {
		return 0, false, nil
	}
	return time.Since(lastSeen.Time), true, nil
}
