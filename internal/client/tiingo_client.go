package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"services/price-ingest-service/internal/config"
	"services/price-ingest-service/internal/model"

	"go.uber.org/zap"
)

const (
	TiingoAPIBaseURL = "https://api.tiingo.com"

	dateOnly = "2006-01-02"
)

// TiingoClient handles communication with the Tiingo API
type TiingoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTiingoClient creates a new Tiingo API client
func NewTiingoClient(cfg config.ProviderConfig, logger *zap.Logger) *TiingoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = TiingoAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &TiingoClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetDailyPrices retrieves EOD bars for a symbol over an inclusive date range
func (c *TiingoClient) GetDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.TiingoDailyBar, error) {
	params := url.Values{}
	params.Add("startDate", start.Format(dateOnly))
	params.Add("endDate", end.Format(dateOnly))
	params.Add("format", "json")

	reqURL := fmt.Sprintf("%s/tiingo/daily/%s/prices?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var bars []model.TiingoDailyBar
	if err := c.get(ctx, reqURL, &bars); err != nil {
		c.logger.Error("Failed to fetch daily prices from Tiingo",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("start", start.Format(dateOnly)),
			zap.String("end", end.Format(dateOnly)))
		return nil, err
	}

	return bars, nil
}

// GetIntradayPrices retrieves intraday bars from the Tiingo IEX endpoint,
// resampled to the given frequency (e.g. "1min", "5min")
func (c *TiingoClient) GetIntradayPrices(ctx context.Context, symbol string, start, end time.Time, resample string) ([]model.TiingoIntradayBar, error) {
	params := url.Values{}
	params.Add("startDate", start.Format(dateOnly))
	params.Add("endDate", end.Format(dateOnly))
	params.Add("resampleFreq", resample)
	params.Add("columns", "open,high,low,close,volume")

	reqURL := fmt.Sprintf("%s/iex/%s/prices?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var bars []model.TiingoIntradayBar
	if err := c.get(ctx, reqURL, &bars); err != nil {
		c.logger.Error("Failed to fetch intraday prices from Tiingo",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("resample", resample))
		return nil, err
	}

	return bars, nil
}

func (c *TiingoClient) get(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Tiingo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.Error("Tiingo API error response",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return fmt.Errorf("Tiingo API returned status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Tiingo response: %w", err)
	}

	return nil
}
