// Package coingecko is the REST client for the CoinGecko market-data API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

const (
	// DefaultBaseURL is the public (demo) API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	demoKeyHeader = "x-cg-demo-api-key"
	proKeyHeader  = "x-cg-pro-api-key"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coingecko api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Unwrap exposes domain.ErrRateLimited for 429 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

// Client implements domain.QuoteProvider against /coins/markets.
type Client struct {
	baseURL    string
	apiKey     string
	pro        bool
	vsCurrency string
	ids        map[domain.Asset]string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for baseURL. An empty baseURL selects
// DefaultBaseURL; an empty apiKey sends no key header.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		vsCurrency: "usd",
		ids:        map[domain.Asset]string{},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry count and initial backoff.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPro sends the key in the pro-plan header instead of the demo one.
func WithPro(pro bool) ClientOption {
	return func(c *Client) {
		c.pro = pro
	}
}

// WithVsCurrency sets the quote currency (default "usd").
func WithVsCurrency(cur string) ClientOption {
	return func(c *Client) {
		if cur != "" {
			c.vsCurrency = strings.ToLower(cur)
		}
	}
}

// WithProviderIDs overrides the provider id used for an asset, e.g.
// matic -> "matic-network". Assets without an entry use their own name.
func WithProviderIDs(ids map[domain.Asset]string) ClientOption {
	return func(c *Client) {
		for a, id := range ids {
			c.ids[a] = id
		}
	}
}

func (c *Client) providerID(a domain.Asset) string {
	if id, ok := c.ids[a]; ok && id != "" {
		return id
	}
	return string(a)
}

// FetchQuotes requests every asset in one call and returns the quotes the
// provider reported.
func (c *Client) FetchQuotes(ctx context.Context, assets []domain.Asset) (map[domain.Asset]domain.Quote, error) {
	if len(assets) == 0 {
		return map[domain.Asset]domain.Quote{}, nil
	}

	byID := make(map[string]domain.Asset, len(assets))
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		id := c.providerID(a)
		byID[id] = a
		ids = append(ids, id)
	}

	query := url.Values{}
	query.Set("vs_currency", c.vsCurrency)
	query.Set("ids", strings.Join(ids, ","))

	body, err := c.doWithRetry(ctx, "/coins/markets", query)
	if err != nil {
		return nil, fmt.Errorf("coingecko: fetch markets: %w: %w", domain.ErrProviderFetch, err)
	}

	entries, err := decodeMarkets(body)
	if err != nil {
		return nil, fmt.Errorf("coingecko: decode markets: %w: %w", domain.ErrProviderFetch, err)
	}

	out := make(map[domain.Asset]domain.Quote, len(assets))
	for _, e := range entries {
		asset, ok := byID[e.ID]
		if !ok {
			continue
		}
		q, ok := e.toQuote(asset)
		if !ok {
			c.logger.Debug("coingecko: entry without price", slog.String("id", e.ID))
			continue
		}
		out[asset] = q
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		header := demoKeyHeader
		if c.pro {
			header = proKeyHeader
		}
		req.Header.Set(header, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}
	return body, nil
}

// doWithRetry repeats retryable API errors with jittered exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * (0.5 to 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("coingecko: retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("path", path),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Compile-time interface check.
var _ domain.QuoteProvider = (*Client)(nil)
