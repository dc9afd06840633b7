// Package marketdata provides a client for the upstream portfolio and
// market-data collaborator APIs.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	// sessionCookieName is the cookie the upstream's session auth reads
	// on the stream endpoint.
	sessionCookieName = "access_token_cookie"
)

// Client implements the MarketDataClient interface
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient carries no timeout and bypasses the session
	// interceptor; stream credentials travel as a cookie instead.
	streamClient *http.Client
	logger       *common.Logger
	limiter      *rate.Limiter
	now          func() time.Time // injectable clock for testing

	sessionSecret string
	sessionUser   string
	sessionExpiry time.Duration

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	pushWarn sync.Once
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit. Zero or negative keeps the default.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout for regular API calls
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSession sets the credentials used against the upstream: API calls
// carry a minted bearer token, the stream connection the session cookie.
func WithSession(secret, user string, expiry time.Duration) ClientOption {
	return func(c *Client) {
		c.sessionSecret = secret
		c.sessionUser = user
		c.sessionExpiry = expiry
	}
}

// NewClient creates a new market-data client for the given base URL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		streamClient:  &http.Client{},
		limiter:       rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:        common.NewSilentLogger(),
		now:           time.Now,
		sessionExpiry: 15 * time.Minute,
	}

	for _, opt := range opts {
		opt(c)
	}

	// The interceptor attaches the bearer token to every regular API
	// call. The stream client deliberately skips it.
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient.Transport = &sessionTransport{client: c, base: base}

	return c
}

// sessionTransport injects the upstream session token into API requests.
type sessionTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.sessionToken()
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(req)
}

// sessionToken mints (or reuses) a short-lived HS256 token identifying
// this service to the upstream. Empty when no secret is configured.
func (c *Client) sessionToken() (string, error) {
	if c.sessionSecret == "" {
		return "", nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	now := c.now()
	if c.token != "" && c.tokenExpiry.Sub(now) > time.Minute {
		return c.token, nil
	}

	expiry := now.Add(c.sessionExpiry)
	claims := jwt.RegisteredClaims{
		Subject:   c.sessionUser,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.sessionSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	c.token = signed
	c.tokenExpiry = expiry
	return signed, nil
}

// APIError represents an upstream API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market-data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Market-data API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetPortfolio retrieves a portfolio with its enriched trade ledger
func (c *Client) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	path := fmt.Sprintf("/api/v1/portfolios/%s", url.PathEscape(portfolioID))
	if err := c.get(ctx, path, nil, &portfolio); err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// GetCurrencies retrieves the supported currency list
func (c *Client) GetCurrencies(ctx context.Context) ([]models.Currency, error) {
	var currencies []models.Currency
	if err := c.get(ctx, "/api/v1/currencies", nil, &currencies); err != nil {
		return nil, err
	}
	return currencies, nil
}

// GetExchangeRates retrieves the latest USD-based exchange rates
func (c *Client) GetExchangeRates(ctx context.Context) ([]models.ExchangeRate, error) {
	var rates []models.ExchangeRate
	if err := c.get(ctx, "/api/v1/exchange-rates", nil, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// GetSecurities retrieves the security directory, optionally filtered
func (c *Client) GetSecurities(ctx context.Context, query string) ([]models.Security, error) {
	params := url.Values{}
	if query != "" {
		params.Set("query", query)
	}

	var securities []models.Security
	if err := c.get(ctx, "/api/v1/securities", params, &securities); err != nil {
		return nil, err
	}
	return securities, nil
}

// Ensure Client implements MarketDataClient
var _ interfaces.MarketDataClient = (*Client)(nil)
