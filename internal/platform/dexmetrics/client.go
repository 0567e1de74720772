// Package dexmetrics is the HTTP client for the DEX pool-metrics API, the
// primary data source for analysis cycles.
package dexmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries the pool-metrics REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a pool-metrics client. baseURL is the API root, e.g.
// "https://metrics.example.com". A zero timeout defaults to 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PoolMetrics is the wire shape of one pool's market state as reported by
// the metrics API.
type PoolMetrics struct {
	PoolID      string    `json:"pool_id"`
	Token0Price float64   `json:"token0_price"`
	Token1Price float64   `json:"token1_price"`
	Volume24h   float64   `json:"volume_24h"`
	Liquidity   float64   `json:"liquidity"`
	PriceImpact float64   `json:"price_impact"`
	Volatility  float64   `json:"volatility"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// poolsResponse is the envelope for the batch pools endpoint.
type poolsResponse struct {
	Pools []PoolMetrics `json:"pools"`
}

// FetchPoolMetrics retrieves current metrics for the given pools in one
// batch request. Pools unknown to the API are simply absent from the result.
func (c *Client) FetchPoolMetrics(ctx context.Context, poolIDs []string) ([]PoolMetrics, error) {
	endpoint := fmt.Sprintf("%s/v1/pools?ids=%s", c.baseURL, url.QueryEscape(strings.Join(poolIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dexmetrics: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexmetrics: fetch pools: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dexmetrics: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexmetrics: fetch pools: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out poolsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("dexmetrics: decode pools: %w", err)
	}

	return out.Pools, nil
}
