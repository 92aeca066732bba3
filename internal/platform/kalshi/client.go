// Package kalshi implements the Kalshi provider adapter on top of the
// Kalshi trade API.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKeyID   string
	pageLimit  int
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// Config holds the adapter parameters.
type Config struct {
	BaseURL      string
	ApiKeyID     string
	PageLimit    int
	FetchTimeout time.Duration
}

// NewClient creates a new Kalshi adapter.
//
// BaseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// Requests are sent unsigned until SetRSAPrivateKey is called; public market
// data does not require authentication.
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
		apiKeyID:  cfg.ApiKeyID,
		pageLimit: limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// Platform identifies this adapter.
func (c *Client) Platform() domain.Platform { return domain.PlatformKalshi }

// FetchListings returns open markets mapped to the common listing shape.
func (c *Client) FetchListings(ctx context.Context) (domain.FetchResult, error) {
	params := url.Values{}
	params.Set("status", "open")
	params.Set("limit", strconv.Itoa(c.pageLimit))

	body, err := c.doRequest(ctx, http.MethodGet, "/markets?"+params.Encode())
	if err != nil {
		return domain.FetchResult{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []APIMarket `json:"markets"`
		Cursor  string      `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FetchResult{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	now := time.Now().UTC()
	result := domain.FetchResult{
		Platform:  domain.PlatformKalshi,
		Listings:  make([]domain.MarketListing, 0, len(resp.Markets)),
		FetchedAt: now,
	}
	for i := range resp.Markets {
		listing, ok := resp.Markets[i].ToListing(now)
		if !ok {
			result.Skipped++
			continue
		}
		result.Listings = append(result.Listings, listing)
	}
	return result, nil
}

// doRequest performs an HTTP request, signing it when an RSA key is
// configured, and returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.privateKey != nil {
		if err := c.signRequest(req, method, path); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over the timestamp + method + path
// message string.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	// The message to sign is: timestamp + method + path.
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("rsa sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	return nil
}

// Compile-time interface check.
var _ domain.ProviderAdapter = (*Client)(nil)
