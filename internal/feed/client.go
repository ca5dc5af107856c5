// Package feed fetches the SPX contract reference feed: listed strikes per
// expiration plus the observed box spread rate curve.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// Client is the REST client for the contract feed server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a feed client.
//
// baseURL is the server root, e.g. "https://api.syntheticfi.com".
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// contractsResponse is the wire shape of the contracts endpoint. Rate
// buckets arrive keyed by stringified day counts.
type contractsResponse struct {
	Expirations map[string][]float64        `json:"expirations"`
	Rates       map[string]domain.RateQuote `json:"rates"`
}

// FetchContracts retrieves the current strike lists and rate curve.
func (c *Client) FetchContracts(ctx context.Context) (domain.ContractSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/chrome/contracts", nil)
	if err != nil {
		return domain.ContractSnapshot{}, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ContractSnapshot{}, fmt.Errorf("feed: fetch contracts: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return domain.ContractSnapshot{}, fmt.Errorf("feed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ContractSnapshot{}, fmt.Errorf("feed: contracts returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var decoded contractsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.ContractSnapshot{}, fmt.Errorf("feed: decode contracts: %w", err)
	}

	snap := domain.ContractSnapshot{
		Expirations: decoded.Expirations,
		Rates:       make(map[int]domain.RateQuote, len(decoded.Rates)),
		FetchedAt:   time.Now(),
	}
	for key, quote := range decoded.Rates {
		days, err := strconv.Atoi(key)
		if err != nil {
			return domain.ContractSnapshot{}, fmt.Errorf("feed: bad rate bucket %q: %w", key, err)
		}
		snap.Rates[days] = quote
	}
	return snap, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
