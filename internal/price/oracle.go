// Package price provides the point-in-time USD price of a chain's native
// currency.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Coin ids understood by the price API
const (
	CoinEthereum = "ethereum"
	CoinBNB      = "binancecoin"
	CoinHBAR     = "hedera-hashgraph"
)

// Quote is a USD spot price valid for a single run
type Quote struct {
	Coin      string
	USD       decimal.Decimal
	FetchedAt time.Time
}

// Oracle defines the interface for native currency price sources
type Oracle interface {
	// Fetch returns the current USD price of coin
	Fetch(ctx context.Context, coin string) (Quote, error)
}

// FetchError is returned when no usable price could be obtained
type FetchError struct {
	Coin string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s price: %v", e.Coin, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CoinGeckoClient reads spot prices from the CoinGecko simple price endpoint
type CoinGeckoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient(maxRetries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// NewCoinGeckoClient creates a price client. maxRetries of zero performs a
// single attempt.
func NewCoinGeckoClient(baseURL, apiKey string, maxRetries int) *CoinGeckoClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &CoinGeckoClient{
		httpClient: newRetryClient(maxRetries).StandardClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type simplePriceResponse map[string]struct {
	USD *json.Number `json:"usd"`
}

// Fetch implements Oracle
func (c *CoinGeckoClient) Fetch(ctx context.Context, coin string) (Quote, error) {
	fail := func(err error) (Quote, error) {
		return Quote{}, &FetchError{Coin: coin, Err: err}
	}

	q := url.Values{}
	q.Set("ids", coin)
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	logrus.WithFields(logrus.Fields{
		"coin":     coin,
		"endpoint": c.baseURL,
	}).Debug("Fetching native currency price")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload simplePriceResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fail(fmt.Errorf("failed to decode response: %w", err))
	}

	entry, ok := payload[coin]
	if !ok || entry.USD == nil {
		return fail(fmt.Errorf("no usd price in response"))
	}

	usd, err := decimal.NewFromString(entry.USD.String())
	if err != nil {
		return fail(fmt.Errorf("malformed usd price %q: %w", entry.USD.String(), err))
	}
	if usd.IsNegative() {
		return fail(fmt.Errorf("negative usd price %s", usd))
	}

	return Quote{Coin: coin, USD: usd, FetchedAt: time.Now().UTC()}, nil
}
