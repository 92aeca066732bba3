// Package polymarket implements the Polymarket provider adapter on top of
// the Gamma REST API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Client is the REST client for the Polymarket Gamma API.
type Client struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client
}

// Config holds the adapter parameters.
type Config struct {
	GammaHost    string
	PageLimit    int
	FetchTimeout time.Duration
}

// NewClient creates a new Gamma API adapter.
//
// GammaHost is the API root, e.g. "https://gamma-api.polymarket.com".
func NewClient(cfg Config) *Client {
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 200
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL:   cfg.GammaHost,
		pageLimit: limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Platform identifies this adapter.
func (c *Client) Platform() domain.Platform { return domain.PlatformPolymarket }

// FetchListings returns active markets mapped to the common listing shape.
// Malformed individual records are skipped and counted; only transport-level
// failures return an error.
func (c *Client) FetchListings(ctx context.Context) (domain.FetchResult, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(c.pageLimit))

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("polymarket: get markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.FetchResult{}, fmt.Errorf("polymarket: decode markets: %w", err)
	}

	now := time.Now().UTC()
	result := domain.FetchResult{
		Platform:  domain.PlatformPolymarket,
		Listings:  make([]domain.MarketListing, 0, len(apiMarkets)),
		FetchedAt: now,
	}
	for i := range apiMarkets {
		listing, ok := apiMarkets[i].ToListing(now)
		if !ok {
			result.Skipped++
			continue
		}
		result.Listings = append(result.Listings, listing)
	}
	return result, nil
}

// doGet performs a GET request against the Gamma API and returns the raw
// response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.ProviderAdapter = (*Client)(nil)
