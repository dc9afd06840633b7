package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

func security(id, symbol string, status models.SecurityStatus) *models.Security {
	return &models.Security{
		ID:       id,
		Symbol:   symbol,
		Name:     symbol + " Inc",
		Exchange: "NASDAQ",
		Status:   status,
	}
}

func buy(securityID string, quantity int64, unitPrice float64) *models.Trade {
	return &models.Trade{
		ID:            securityID + "-buy",
		SecurityID:    securityID,
		Security:      security(securityID, securityID, models.SecurityStatusActive),
		TradeType:     models.TradeTypeBuy,
		TradeDatetime: time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC),
		UnitPrice:     unitPrice,
		Quantity:      quantity,
	}
}

func sell(securityID string, quantity int64, unitPrice float64) *models.Trade {
	t := buy(securityID, quantity, unitPrice)
	t.ID = securityID + "-sell"
	t.TradeType = models.TradeTypeSell
	return t
}

func TestAggregate_GroupsBySecurity(t *testing.T) {
	trades := []*models.Trade{
		buy("sec-aapl", 10, 100),
		buy("sec-msft", 5, 200),
		buy("sec-aapl", 2, 110),
	}

	positions := Aggregate(trades, nil)
	require.Len(t, positions, 2)

	aapl := positions["sec-aapl"]
	require.NotNil(t, aapl)
	assert.Equal(t, int64(12), aapl.Quantity)
	assert.InDelta(t, 1220.0, aapl.BuyIn, 1e-9)

	msft := positions["sec-msft"]
	require.NotNil(t, msft)
	assert.Equal(t, int64(5), msft.Quantity)
	assert.InDelta(t, 1000.0, msft.BuyIn, 1e-9)
}

func TestAggregate_SellsNetNegatively(t *testing.T) {
	trades := []*models.Trade{
		buy("sec-aapl", 10, 100),
		sell("sec-aapl", 4, 120),
	}

	positions := Aggregate(trades, nil)
	aapl := positions["sec-aapl"]
	require.NotNil(t, aapl)

	assert.Equal(t, int64(6), aapl.Quantity)
	// 10*100 - 4*120
	assert.InDelta(t, 520.0, aapl.BuyIn, 1e-9)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	forward := []*models.Trade{
		buy("sec-aapl", 10, 100),
		sell("sec-aapl", 4, 120),
		buy("sec-msft", 5, 200),
	}
	reversed := []*models.Trade{forward[2], forward[1], forward[0]}

	a := Aggregate(forward, nil)
	b := Aggregate(reversed, nil)

	require.Len(t, b, len(a))
	for id, pa := range a {
		pb := b[id]
		require.NotNil(t, pb)
		assert.Equal(t, pa.Quantity, pb.Quantity)
		assert.InDelta(t, pa.BuyIn, pb.BuyIn, 1e-9)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	trades := []*models.Trade{
		buy("sec-aapl", 10, 100),
		sell("sec-aapl", 4, 120),
	}

	first := Aggregate(trades, nil)
	second := Aggregate(trades, nil)

	assert.Equal(t, first["sec-aapl"].Quantity, second["sec-aapl"].Quantity)
	assert.InDelta(t, first["sec-aapl"].BuyIn, second["sec-aapl"].BuyIn, 1e-9)
}

func TestAggregate_BrokerageFeeExcludedFromBasis(t *testing.T) {
	trade := buy("sec-aapl", 10, 100)
	trade.BrokerageFee = 9.95

	positions := Aggregate([]*models.Trade{trade}, nil)
	assert.InDelta(t, 1000.0, positions["sec-aapl"].BuyIn, 1e-9)
}

func TestAggregate_PrefersDirectorySecurity(t *testing.T) {
	delisted := security("sec-aapl", "AAPL", models.SecurityStatusDelisted)
	lookup := func(id string) (*models.Security, bool) {
		if id == "sec-aapl" {
			return delisted, true
		}
		return nil, false
	}

	trades := []*models.Trade{
		buy("sec-aapl", 10, 100), // embedded security says ACTIVE
		buy("sec-unknown", 1, 50),
	}

	positions := Aggregate(trades, lookup)
	assert.Same(t, delisted, positions["sec-aapl"].Security)
	// unknown to the directory: the trade's embedded copy stands in
	assert.Equal(t, "sec-unknown", positions["sec-unknown"].Security.ID)
}

func TestAggregate_MarketFieldsStartZero(t *testing.T) {
	positions := Aggregate([]*models.Trade{buy("sec-aapl", 10, 100)}, nil)
	aapl := positions["sec-aapl"]

	assert.Zero(t, aapl.MarketValue)
	assert.Zero(t, aapl.TotalReturn)
}
