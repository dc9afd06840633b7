package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]ClientOption{WithLogger(common.NewSilentLogger())}, opts...)
	return NewClient(server.URL, opts...)
}

func TestGetPortfolio(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/portfolios/pf-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "pf-1",
			"name": "Growth",
			"currency": {"id": "2", "code": "EUR", "symbol": "€"},
			"trades": [
				{
					"id": "t-1",
					"security_id": "sec-1",
					"security": {"id": "sec-1", "symbol": "AAPL", "name": "Apple Inc", "exchange": "NASDAQ", "status": "ACTIVE"},
					"trade_type": "BUY",
					"trade_datetime": "2026-01-15T10:30:00Z",
					"unit_price": 150.5,
					"quantity": 10,
					"brokerage_fee": 4.95
				}
			]
		}`))
	})

	client := newTestClient(t, handler)
	portfolio, err := client.GetPortfolio(context.Background(), "pf-1")
	require.NoError(t, err)

	assert.Equal(t, "Growth", portfolio.Name)
	assert.Equal(t, "EUR", portfolio.Currency.Code)
	require.Len(t, portfolio.Trades, 1)
	trade := portfolio.Trades[0]
	assert.Equal(t, models.TradeTypeBuy, trade.TradeType)
	assert.Equal(t, int64(10), trade.Quantity)
	assert.Equal(t, 150.5, trade.UnitPrice)
	require.NotNil(t, trade.Security)
	assert.Equal(t, "AAPL", trade.Security.Symbol)
}

func TestGetPortfolioUpstreamError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "portfolio not found", http.StatusNotFound)
	})

	client := newTestClient(t, handler)
	_, err := client.GetPortfolio(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetCurrencies(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/currencies", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","code":"USD","symbol":"$"},{"id":"2","code":"EUR","symbol":"€"}]`))
	})

	client := newTestClient(t, handler)
	currencies, err := client.GetCurrencies(context.Background())
	require.NoError(t, err)
	require.Len(t, currencies, 2)
	assert.Equal(t, "EUR", currencies[1].Code)
}

func TestGetExchangeRates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/exchange-rates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"to":"EUR","rate":0.91},{"to":"GBP","rate":0.79}]`))
	})

	client := newTestClient(t, handler)
	rates, err := client.GetExchangeRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "EUR", rates[0].To)
	assert.Equal(t, 0.91, rates[0].Rate)
}

func TestGetSecuritiesPassesQuery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/securities", r.URL.Path)
		assert.Equal(t, "aa", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","symbol":"AAPL","name":"Apple Inc","exchange":"NASDAQ","status":"ACTIVE"}]`))
	})

	client := newTestClient(t, handler)
	securities, err := client.GetSecurities(context.Background(), "aa")
	require.NoError(t, err)
	require.Len(t, securities, 1)
	assert.Equal(t, "AAPL", securities[0].Symbol)
}

func TestSessionTokenAttachedToAPIRequests(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	client := newTestClient(t, handler, WithSession("test-secret", "portfolio-manager", 15*time.Minute))
	_, err := client.GetCurrencies(context.Background())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "), "expected bearer token, got %q", gotAuth)

	// The minted token is a valid HS256 JWT with our subject claim.
	raw := strings.TrimPrefix(gotAuth, "Bearer ")
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "portfolio-manager", claims.Subject)
}

func TestSessionTokenReusedUntilNearExpiry(t *testing.T) {
	client := NewClient("http://unused", WithSession("test-secret", "svc", 15*time.Minute))

	first, err := client.sessionToken()
	require.NoError(t, err)
	second, err := client.sessionToken()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Near expiry a fresh token is minted.
	client.now = func() time.Time { return time.Now().Add(14*time.Minute + 30*time.Second) }
	third, err := client.sessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestNoSessionSecretMeansNoAuthHeader(t *testing.T) {
	var sawAuth bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	client := newTestClient(t, handler)
	_, err := client.GetCurrencies(context.Background())
	require.NoError(t, err)
	assert.False(t, sawAuth)
}
