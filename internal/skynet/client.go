// Package skynet talks to the virtual-airline backend: PIREP submission
// on flight end plus pilot and airport lookups.
package skynet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skytrack-va/skytrack/internal/config"
	"github.com/skytrack-va/skytrack/pkg/logger"
)

// Client handles HTTP requests to the virtual-airline backend
type Client struct {
	config     config.SkynetConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new backend API client
func NewClient(cfg config.SkynetConfig, log *logger.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: log.Named("skynet-client"),
	}
}

// SubmitPIREP posts a flight report to the backend
func (c *Client) SubmitPIREP(ctx context.Context, pirep *PIREPSubmission) (*PIREPResponse, error) {
	body, err := json.Marshal(pirep)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PIREP: %w", err)
	}

	var resp PIREPResponse
	url := c.config.BaseURL + "/pireps"
	if err := c.doWithRetry(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("PIREP submitted",
		logger.String("callsign", pirep.Callsign),
		logger.String("pirep_id", resp.ID),
		logger.String("status", resp.Status))
	return &resp, nil
}

// GetPilot looks up a pilot by callsign
func (c *Client) GetPilot(ctx context.Context, callsign string) (*Pilot, error) {
	var pilot Pilot
	url := fmt.Sprintf("%s/pilots/%s", c.config.BaseURL, callsign)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &pilot); err != nil {
		return nil, err
	}
	return &pilot, nil
}

// GetFlight looks up a scheduled flight by its backend identifier
func (c *Client) GetFlight(ctx context.Context, flightID string) (*Flight, error) {
	var flight Flight
	url := fmt.Sprintf("%s/flights/%s", c.config.BaseURL, flightID)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &flight); err != nil {
		return nil, err
	}
	return &flight, nil
}

// GetActiveBid returns the pilot's active bid, if any
func (c *Client) GetActiveBid(ctx context.Context, callsign string) (*Bid, error) {
	var bid Bid
	url := fmt.Sprintf("%s/pilots/%s/bids/active", c.config.BaseURL, callsign)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetAirport looks up an airport by ICAO code
func (c *Client) GetAirport(ctx context.Context, icao string) (*Airport, error) {
	var airport Airport
	url := fmt.Sprintf("%s/airports/%s", c.config.BaseURL, icao)
	if err := c.doWithRetry(ctx, http.MethodGet, url, nil, &airport); err != nil {
		return nil, err
	}
	return &airport, nil
}

// doWithRetry performs an HTTP request with capped exponential backoff.
// Server errors and transport failures are retried up to MaxRetries;
// client errors (4xx) fail immediately.
func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, target interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Info("Retrying backend request",
				logger.String("method", method),
				logger.String("url", url),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.do(ctx, method, url, body, target)
		if err == nil {
			return nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !apiErr.Retryable() {
			c.logger.Warn("Backend rejected request",
				logger.String("method", method),
				logger.String("url", url),
				logger.Int("status", apiErr.StatusCode),
				logger.String("message", apiErr.Message))
			return err
		}

		c.logger.Warn("Backend request failed",
			logger.String("method", method),
			logger.String("url", url),
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}

	return fmt.Errorf("backend request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// backoff returns the capped exponential delay before the given attempt
func (c *Client) backoff(attempt int) time.Duration {
	initial := time.Duration(c.config.RetryInitialBackoffMs) * time.Millisecond
	max := time.Duration(c.config.RetryMaxBackoffMs) * time.Millisecond

	d := initial << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, target interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("backend returned status %d", resp.StatusCode)
		}
		return apiErr
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
