// Package manifold implements the Manifold provider adapter on top of the
// public v0 REST API.
package manifold

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

// Client is the REST client for the Manifold API.
type Client struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client
}

// Config holds the adapter parameters.
type Config struct {
	BaseURL      string
	PageLimit    int
	FetchTimeout time.Duration
}

// NewClient creates a new Manifold adapter.
//
// BaseURL is the API root, e.g. "https://api.manifold.markets/v0".
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
		baseURL:   cfg.BaseURL,
		pageLimit: limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Platform identifies this adapter.
func (c *Client) Platform() domain.Platform { return domain.PlatformManifold }

// FetchListings returns open binary markets mapped to the common listing
// shape.
func (c *Client) FetchListings(ctx context.Context) (domain.FetchResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageLimit))
	params.Set("sort", "last-bet-time")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("manifold: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("manifold: get markets: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("manifold: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.FetchResult{}, fmt.Errorf("manifold: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.FetchResult{}, fmt.Errorf("manifold: decode markets: %w", err)
	}

	now := time.Now().UTC()
	result := domain.FetchResult{
		Platform:  domain.PlatformManifold,
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

// Compile-time interface check.
var _ domain.ProviderAdapter = (*Client)(nil)
