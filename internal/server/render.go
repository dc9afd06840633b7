package server

import (
	"context"
	"strings"
	"time"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// ErrCodeCurrencyUnavailable marks amounts that could not be converted
// to the requested display currency. The amount is null, never a wrong
// figure in the wrong units.
const ErrCodeCurrencyUnavailable = "currency_unavailable"

// PositionPayload is one rendered position. Monetary fields are in the
// display currency, rounded to 2 decimal places; nil means conversion
// was unavailable.
type PositionPayload struct {
	Security    *models.Security `json:"security"`
	Quantity    int64            `json:"quantity"`
	BuyIn       *float64         `json:"buy_in"`
	MarketValue *float64         `json:"market_value"`
	TotalReturn *float64         `json:"total_return"`
}

// PerformancePayload is the rendered portfolio-level aggregate.
type PerformancePayload struct {
	BuyIn       *float64 `json:"buy_in"`
	MarketValue *float64 `json:"market_value"`
	TotalReturn *float64 `json:"total_return"`
}

// ViewPayload is what clients see: a valuation converted to the display
// currency at the presentation boundary. Internal math stays USD.
type ViewPayload struct {
	PortfolioID     string             `json:"portfolio_id"`
	PortfolioName   string             `json:"portfolio_name"`
	DisplayCurrency string             `json:"display_currency"`
	Live            bool               `json:"live"`
	ComputedAt      time.Time          `json:"computed_at"`
	Positions       []PositionPayload  `json:"positions"`
	Performance     PerformancePayload `json:"performance"`
	Error           string             `json:"error,omitempty"`
}

// renderer converts USD valuations into display-currency payloads.
type renderer struct {
	refdata interfaces.ReferenceDataService
}

// Render produces the client payload for one valuation. A missing
// exchange rate nulls every monetary amount and sets the error marker;
// quantities and identity fields always render.
func (rn *renderer) Render(ctx context.Context, portfolioID, portfolioName string, valuation *models.Valuation, displayCurrency string, live bool) *ViewPayload {
	payload := &ViewPayload{
		PortfolioID:     portfolioID,
		PortfolioName:   portfolioName,
		DisplayCurrency: displayCurrency,
		Live:            live,
		ComputedAt:      valuation.ComputedAt,
		Positions:       make([]PositionPayload, 0, len(valuation.Positions)),
	}

	convert := rn.converter(ctx, displayCurrency, payload)

	for _, position := range valuation.Positions {
		payload.Positions = append(payload.Positions, PositionPayload{
			Security:    position.Security,
			Quantity:    position.Quantity,
			BuyIn:       convert(position.BuyIn),
			MarketValue: convert(position.MarketValue),
			TotalReturn: convert(position.TotalReturn),
		})
	}

	payload.Performance = PerformancePayload{
		BuyIn:       convert(valuation.Performance.BuyIn),
		MarketValue: convert(valuation.Performance.MarketValue),
		TotalReturn: convert(valuation.Performance.TotalReturn),
	}

	return payload
}

// converter returns an amount converter bound to one payload: the first
// failed conversion flags the payload and every later amount renders
// null too, keeping the view internally consistent.
func (rn *renderer) converter(ctx context.Context, displayCurrency string, payload *ViewPayload) func(float64) *float64 {
	if strings.EqualFold(displayCurrency, models.BaseCurrencyCode) {
		return func(amount float64) *float64 {
			rounded := models.Round2(amount)
			return &rounded
		}
	}

	return func(amount float64) *float64 {
		if payload.Error != "" {
			return nil
		}
		converted := rn.refdata.ConvertFromUsd(ctx, amount, displayCurrency)
		if converted == nil {
			payload.Error = ErrCodeCurrencyUnavailable
			return nil
		}
		rounded := models.Round2(*converted)
		return &rounded
	}
}
