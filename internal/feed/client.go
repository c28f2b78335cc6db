// Package feed is the read-only client for the ingestion collaborator that
// owns OHLCV history and option-chain snapshots. The pipeline never writes
// through this interface.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

// Source is what the execution scaffold consumes; the HTTP client and the
// test fakes both satisfy it.
type Source interface {
	OptionChain(ctx context.Context, symbol string, at time.Time) (*market.OptionChainSnapshot, error)
	DailyBars(ctx context.Context, symbol string, end time.Time, lookback int) ([]market.OHLCVBar, error)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (c *HTTPClient) OptionChain(ctx context.Context, symbol string, at time.Time) (*market.OptionChainSnapshot, error) {
	url := fmt.Sprintf("%s/v1/chains/%s?at=%s", c.baseURL, symbol, at.UTC().Format(time.RFC3339))

	var snap market.OptionChainSnapshot
	if err := c.getJSON(ctx, url, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) DailyBars(ctx context.Context, symbol string, end time.Time, lookback int) ([]market.OHLCVBar, error) {
	url := fmt.Sprintf("%s/v1/bars/%s?end=%s&lookback=%d",
		c.baseURL, symbol, end.UTC().Format("2006-01-02"), lookback)

	var bars []market.OHLCVBar
	if err := c.getJSON(ctx, url, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// getJSON performs a rate-limited GET with exponential-backoff retries on
// transient failures. 404 and 401 map to sentinel errors and are not
// retried.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	c.logger.Debug("requesting", zap.String("url", url))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return ErrAuthFailed
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
