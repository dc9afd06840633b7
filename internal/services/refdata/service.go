// Package refdata provides TTL-cached reference data: the currency
// list, USD exchange rates, and the security directory. Each cache
// refreshes independently on its own staleness policy; reads never
// block on the upstream.
package refdata

import (
	"context"
	"strings"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/cache"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// MaxSearchResults caps security search suggestions.
const MaxSearchResults = 10

// Service implements ReferenceDataService on three independent caches.
type Service struct {
	client interfaces.MarketDataClient
	logger *common.Logger

	currencies *cache.Cache[[]models.Currency]
	rates      *cache.Cache[map[string]float64]
	securities *cache.Cache[[]models.Security]
}

// NewService creates the reference data service. store may be nil;
// caches then live only for the process lifetime.
func NewService(ctx context.Context, client interfaces.MarketDataClient, store interfaces.CacheStore, logger *common.Logger) *Service {
	return &Service{
		client:     client,
		logger:     logger,
		currencies: cache.New[[]models.Currency](ctx, models.CacheKeyCurrencies, common.FreshnessCurrencies, store, logger),
		rates:      cache.New[map[string]float64](ctx, models.CacheKeyExchangeRates, common.FreshnessExchangeRates, store, logger),
		securities: cache.New[[]models.Security](ctx, models.CacheKeySecurities, common.FreshnessSecurities, store, logger),
	}
}

// Currencies returns the cached currency list, refreshing in the
// background when stale.
func (s *Service) Currencies(ctx context.Context) []models.Currency {
	entry := s.currencies.GetFresh(ctx, s.fetchCurrencies)
	return entry.Value
}

func (s *Service) fetchCurrencies(ctx context.Context) ([]models.Currency, error) {
	return s.client.GetCurrencies(ctx)
}

// ExchangeRate returns the latest known rate for code (units per 1 USD).
func (s *Service) ExchangeRate(ctx context.Context, code string) (float64, bool) {
	entry := s.rates.GetFresh(ctx, s.fetchRates)
	if !entry.Present {
		return 0, false
	}
	rate, ok := entry.Value[strings.ToUpper(code)]
	return rate, ok
}

func (s *Service) fetchRates(ctx context.Context) (map[string]float64, error) {
	rates, err := s.client.GetExchangeRates(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]float64, len(rates))
	for _, r := range rates {
		byCode[strings.ToUpper(r.To)] = r.Rate
	}
	return byCode, nil
}

// ConvertFromUsd converts a USD amount into the given currency. USD is
// the identity. Returns nil when the rate is unavailable: the caller
// renders "currency unavailable" instead of a wrong figure.
func (s *Service) ConvertFromUsd(ctx context.Context, amount float64, code string) *float64 {
	if strings.EqualFold(code, models.BaseCurrencyCode) {
		return &amount
	}

	rate, ok := s.ExchangeRate(ctx, code)
	if !ok {
		s.logger.Error().Str("currency", code).Msg("Exchange rate not available for conversion from USD")
		return nil
	}

	converted := amount * rate
	return &converted
}

// ConvertToUsd converts an amount in the given currency back to USD.
func (s *Service) ConvertToUsd(ctx context.Context, amount float64, code string) *float64 {
	if strings.EqualFold(code, models.BaseCurrencyCode) {
		return &amount
	}

	rate, ok := s.ExchangeRate(ctx, code)
	if !ok || rate == 0 {
		s.logger.Error().Str("currency", code).Msg("Exchange rate not available for conversion to USD")
		return nil
	}

	converted := amount / rate
	return &converted
}

// Securities returns the cached security directory.
func (s *Service) Securities(ctx context.Context) []models.Security {
	entry := s.securities.GetFresh(ctx, s.fetchSecurities)
	return entry.Value
}

func (s *Service) fetchSecurities(ctx context.Context) ([]models.Security, error) {
	return s.client.GetSecurities(ctx, "")
}

// SecurityByID looks a directory entry up by ID.
func (s *Service) SecurityByID(ctx context.Context, id string) (*models.Security, bool) {
	for _, sec := range s.Securities(ctx) {
		if sec.ID == id {
			return &sec, true
		}
	}
	return nil, false
}

// SearchSecurities returns up to MaxSearchResults non-delisted
// securities matching the query on symbol or name, case-insensitively,
// in directory order.
func (s *Service) SearchSecurities(ctx context.Context, query string) []models.Security {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var matches []models.Security
	for _, sec := range s.Securities(ctx) {
		if sec.IsDelisted() {
			continue
		}
		if !sec.Matches(query) {
			continue
		}
		matches = append(matches, sec)
		if len(matches) == MaxSearchResults {
			break
		}
	}
	return matches
}

// Ensure Service implements ReferenceDataService
var _ interfaces.ReferenceDataService = (*Service)(nil)
