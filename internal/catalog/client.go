package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"shelfscan/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxResults  = 50
	// tokenExpirySlack refreshes tokens slightly before the server deadline
	// so in-flight requests never race the expiry.
	tokenExpirySlack = 30 * time.Second
)

// ProductImage is one photo attached to a catalog product.
type ProductImage struct {
	URL  string `json:"url"`
	View string `json:"view"`
}

// Product represents a single catalog search match.
type Product struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Brand    string         `json:"brand"`
	Retailer string         `json:"retailer"`
	Category string         `json:"category"`
	Size     string         `json:"size"`
	Images   []ProductImage `json:"images"`
}

// PrimaryImageURL returns the product photo best suited for visual matching.
// Front views win; otherwise the first image is used.
func (p Product) PrimaryImageURL() string {
	for _, img := range p.Images {
		if strings.EqualFold(strings.TrimSpace(img.View), "front") {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// Searcher defines the catalog operations the pipeline consumes.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Product, error)
}

// Client provides access to the product catalog API. Authentication uses a
// short-lived token obtained from the key/secret pair; the token is cached on
// the client and refreshed when the server rejects or expires it.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	maxResults int
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	lastRequest time.Time

	cache       *queryCache
	minInterval time.Duration
	retry       services.RetryPolicy
	now         func() time.Time
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCacheTTL overrides how long search responses are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = newQueryCache(ttl)
	}
}

// WithMinRequestInterval spaces outbound search calls at least this far apart.
func WithMinRequestInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.minInterval = interval
	}
}

// WithRetryPolicy overrides the default backoff behaviour.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a catalog client.
func New(baseURL, apiKey, apiSecret string, maxResults int, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base url required")
	}
	apiKey = strings.TrimSpace(apiKey)
	apiSecret = strings.TrimSpace(apiSecret)
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("catalog api key and secret required")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		cache:      newQueryCache(5 * time.Minute),
		retry:      services.DefaultRetryPolicy(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BuildQuery assembles a catalog search query from extracted product fields.
// Empty fields are skipped; an entirely empty extraction yields "".
func BuildQuery(brand, product, size string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{brand, product, size} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type searchResponse struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
}

// Search queries the catalog and returns at most the configured number of
// products. Responses are cached briefly per query, repeated calls are spaced
// out to respect the upstream rate limit, and rate-limited attempts are
// retried with backoff honouring the server's Retry-After hint.
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	if products, ok := c.cache.get(query); ok {
		return products, nil
	}

	var products []Product
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.waitForSlot(ctx); err != nil {
			return err
		}
		result, err := c.searchOnce(ctx, query, true)
		if err != nil {
			return err
		}
		products = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(products) > c.maxResults {
		products = products[:c.maxResults]
	}
	c.cache.put(query, products)
	return products, nil
}

func (c *Client) searchOnce(ctx context.Context, query string, allowReauth bool) ([]Product, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(c.baseURL + "/v1/products/search")
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.maxResults))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrSearch, "", "search",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		// The cached token may have been revoked server-side. Re-authenticate
		// once; a second rejection means the credentials themselves are bad.
		if allowReauth {
			c.invalidateToken(token)
			return c.searchOnce(ctx, query, false)
		}
		return nil, services.Wrap(services.ErrAuth, "", "search", "catalog authentication failed", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := services.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &rateLimitError{RetryAfter: retryAfter}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrSearch, "", "search",
			fmt.Sprintf("catalog returned %d (latency=%v): %s", resp.StatusCode, latency, strings.TrimSpace(string(body))), nil)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrSearch, "", "search", "decode response", err)
	}
	return payload.Products, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"api_key":    c.apiKey,
		"api_secret": c.apiSecret,
	})
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", services.Wrap(services.ErrAuth, "", "authenticate",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrAuth, "", "authenticate",
			fmt.Sprintf("catalog returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrAuth, "", "authenticate", "decode token response", err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", services.Wrap(services.ErrAuth, "", "authenticate", "empty token in response", nil)
	}

	expiry := c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.mu.Lock()
	c.token = payload.Token
	c.tokenExpiry = expiry
	c.mu.Unlock()
	return payload.Token, nil
}

// invalidateToken drops the cached token only when it still matches the one
// that was rejected, so a concurrent refresh is not thrown away.
func (c *Client) invalidateToken(rejected string) {
	c.mu.Lock()
	if c.token == rejected {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
	c.mu.Unlock()
}

func (c *Client) waitForSlot(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	now := c.now()
	wait := c.minInterval - now.Sub(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = now.Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type rateLimitError struct {
	RetryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("catalog search rate limited (retry after %v)", e.RetryAfter)
	}
	return "catalog search rate limited"
}

func (e *rateLimitError) RetryAfterDelay() time.Duration { return e.RetryAfter }

func (e *rateLimitError) Is(target error) bool { return target == services.ErrRateLimited }
