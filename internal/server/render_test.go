package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// stubRefdata serves a fixed rate table.
type stubRefdata struct {
	rates      map[string]float64
	currencies []models.Currency
	securities []models.Security
}

func (s *stubRefdata) Currencies(ctx context.Context) []models.Currency { return s.currencies }

func (s *stubRefdata) ExchangeRate(ctx context.Context, code string) (float64, bool) {
	rate, ok := s.rates[strings.ToUpper(code)]
	return rate, ok
}

func (s *stubRefdata) ConvertFromUsd(ctx context.Context, amount float64, code string) *float64 {
	if strings.EqualFold(code, models.BaseCurrencyCode) {
		return &amount
	}
	rate, ok := s.rates[strings.ToUpper(code)]
	if !ok {
		return nil
	}
	converted := amount * rate
	return &converted
}

func (s *stubRefdata) ConvertToUsd(ctx context.Context, amount float64, code string) *float64 {
	if strings.EqualFold(code, models.BaseCurrencyCode) {
		return &amount
	}
	rate, ok := s.rates[strings.ToUpper(code)]
	if !ok || rate == 0 {
		return nil
	}
	converted := amount / rate
	return &converted
}

func (s *stubRefdata) Securities(ctx context.Context) []models.Security { return s.securities }

func (s *stubRefdata) SecurityByID(ctx context.Context, id string) (*models.Security, bool) {
	for i := range s.securities {
		if s.securities[i].ID == id {
			return &s.securities[i], true
		}
	}
	return nil, false
}

func (s *stubRefdata) SearchSecurities(ctx context.Context, query string) []models.Security {
	var out []models.Security
	for _, sec := range s.securities {
		if sec.Status != models.SecurityStatusDelisted && sec.Matches(query) {
			out = append(out, sec)
		}
	}
	return out
}

func sampleValuation() *models.Valuation {
	return &models.Valuation{
		Positions: []*models.Position{
			{
				Security:    &models.Security{ID: "sec-1", Symbol: "AAPL", Status: models.SecurityStatusActive},
				Quantity:    10,
				BuyIn:       1000,
				MarketValue: 1200,
				TotalReturn: 200,
			},
		},
		Performance: models.Performance{BuyIn: 1000, MarketValue: 1200, TotalReturn: 200},
		ComputedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRender_UsdPassthroughRounds(t *testing.T) {
	rn := renderer{refdata: &stubRefdata{}}

	valuation := sampleValuation()
	valuation.Positions[0].BuyIn = 1000.005

	payload := rn.Render(context.Background(), "pf-1", "Growth", valuation, "USD", true)

	require.Len(t, payload.Positions, 1)
	require.NotNil(t, payload.Positions[0].BuyIn)
	assert.InDelta(t, 1000.01, *payload.Positions[0].BuyIn, 1e-9)
	assert.Empty(t, payload.Error)
	assert.True(t, payload.Live)
}

func TestRender_ConvertsToDisplayCurrency(t *testing.T) {
	rn := renderer{refdata: &stubRefdata{rates: map[string]float64{"EUR": 0.9}}}

	payload := rn.Render(context.Background(), "pf-1", "Growth", sampleValuation(), "EUR", true)

	pos := payload.Positions[0]
	require.NotNil(t, pos.BuyIn)
	assert.InDelta(t, 900.0, *pos.BuyIn, 1e-9)
	require.NotNil(t, pos.MarketValue)
	assert.InDelta(t, 1080.0, *pos.MarketValue, 1e-9)
	require.NotNil(t, payload.Performance.TotalReturn)
	assert.InDelta(t, 180.0, *payload.Performance.TotalReturn, 1e-9)
	assert.Equal(t, "EUR", payload.DisplayCurrency)
}

func TestRender_UnavailableCurrencyNullsAmounts(t *testing.T) {
	rn := renderer{refdata: &stubRefdata{rates: map[string]float64{}}}

	payload := rn.Render(context.Background(), "pf-1", "Growth", sampleValuation(), "CHF", false)

	assert.Equal(t, ErrCodeCurrencyUnavailable, payload.Error)
	pos := payload.Positions[0]
	assert.Nil(t, pos.BuyIn)
	assert.Nil(t, pos.MarketValue)
	assert.Nil(t, pos.TotalReturn)
	assert.Nil(t, payload.Performance.MarketValue)

	// identity fields still render
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Equal(t, "AAPL", pos.Security.Symbol)
	assert.False(t, payload.Live)
}
