package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/BTCPredictor/internal/platform/http"
	"github.com/Alias1177/BTCPredictor/models"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client is the CoinGecko API client
type Client struct {
	apiKey     string
	baseURL    string
	coinID     string
	timeout    time.Duration
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new CoinGecko client
type ClientOptions struct {
	APIKey         string
	BaseURL        string
	CoinID         string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// NewClient creates a new CoinGecko API client
func NewClient(options ClientOptions) *Client {
	if options.RequestTimeout == 0 {
		options.RequestTimeout = 10 * time.Second
	}
	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	if options.CoinID == "" {
		options.CoinID = "bitcoin"
	}

	return &Client{
		apiKey:  options.APIKey,
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		coinID:  options.CoinID,
		timeout: options.RequestTimeout,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetryTimeout: options.RequestTimeout,
		}),
		logger: log.With().Str("component", "coingecko_client").Logger(),
	}
}

// FetchSnapshot fetches the current market data for the configured coin.
// The whole fetch, retries included, is bounded by the request timeout.
func (c *Client) FetchSnapshot(ctx context.Context) (*models.MarketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")
	endpoint := fmt.Sprintf("%s/coins/%s?%s", c.baseURL, url.PathEscape(c.coinID), q.Encode())

	c.logger.Debug().Str("url", endpoint).Msg("Fetching market data")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var data models.CoinResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(body)).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	snap := data.Snapshot()
	if snap.CurrentPrice <= 0 {
		c.logger.Warn().Str("response", string(body)).Msg("No current price in response")
		return nil, fmt.Errorf("empty market data returned")
	}

	c.logger.Debug().
		Float64("price", snap.CurrentPrice).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched market data")
	return &snap, nil
}
