// Package random is the HTTP client for the external random-number service
// used to draw the computer opponent's move.
package random

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable wraps every failure to obtain a number, whether from
// exhausted retries or an open circuit. Callers check this one kind and never
// retry themselves.
var ErrUnavailable = errors.New("random number service unavailable")

const defaultTimeout = 5 * time.Second

// Config tunes the client's resilience policies.
type Config struct {
	// BaseURL is the service root, without a trailing slash.
	BaseURL string
	// Timeout bounds each individual request.
	Timeout time.Duration
	// MaxRetries bounds the retry attempts after the first request.
	MaxRetries uint64
}

// Client fetches random numbers with a per-request timeout, exponential
// backoff retries, and a circuit breaker that opens after consecutive
// failures.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a Client for the service at cfg.BaseURL.
//
// Precondition: cfg.BaseURL is non-empty; logger is non-nil.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "random-number",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

type randomNumberResponse struct {
	RandomNumber int `json:"random_number"`
}

// RandomNumber returns a value in [1, max] drawn from the service.
//
// Postcondition: Returns either a value from a 200 response or an error
// wrapping ErrUnavailable; retry and circuit policy are exhausted here, so
// callers must not retry.
func (c *Client) RandomNumber(ctx context.Context, max int) (int, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx, max)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return 0, err
	}
	return result.(int), nil
}

// fetchWithRetry issues the request under the backoff policy. Context
// cancellation and malformed responses are permanent; transport errors and
// 5xx responses are retried.
func (c *Client) fetchWithRetry(ctx context.Context, max int) (int, error) {
	var value int
	operation := func() error {
		n, err := c.fetch(ctx, max)
		if err != nil {
			c.logger.Debug("random number request failed", zap.Error(err))
			return err
		}
		value = n
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

func (c *Client) fetch(ctx context.Context, max int) (int, error) {
	url := fmt.Sprintf("%s/api/randomnumber?upperRange=%d", c.cfg.BaseURL, max)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	var body randomNumberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if body.RandomNumber < 1 || body.RandomNumber > max {
		return 0, backoff.Permanent(fmt.Errorf("value %d outside [1, %d]", body.RandomNumber, max))
	}
	return body.RandomNumber, nil
}
