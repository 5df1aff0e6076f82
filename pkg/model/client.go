package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/etymon/pkg/config"
	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/logging"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	// OpenRouter allows ~200 req/min on most tiers; 1/s with a small burst
	// stays well under that even when several words synthesize at once.
	defaultRateLimit = rate.Limit(1)
	defaultBurstSize = 10
)

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	maxRetries int
	log        *logging.Logger

	// sleep is swappable so backoff can be tested without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client from config. The zero-value pieces fall back to
// OpenRouter defaults.
func NewClient(cfg config.ModelConfig, log *logging.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(defaultRateLimit, defaultBurstSize),
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		maxRetries: cfg.MaxRetries,
		log:        log,
		sleep:      sleepCtx,
	}
}

// BreakerState exposes the circuit state for the health endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// ChatCompletion executes a completion with rate limiting, retry on
// transient failure, and circuit breaking. The returned error is always a
// classified *errors.Error.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, etymerrors.Wrap(err, etymerrors.ErrCodeModelAPI, "rate limit wait interrupted")
	}

	var resp *ChatResponse
	err := c.breaker.Call(func() error {
		var callErr error
		resp, callErr = c.completeWithRetry(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) completeWithRetry(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, retryDelay(attempt, lastErr)); err != nil {
				return nil, etymerrors.Wrap(err, etymerrors.ErrCodeModelAPI, "retry interrupted")
			}
			c.log.Info(logging.CategoryModel, "retry", "retrying completion",
				map[string]any{"attempt": attempt, "model": req.Model})
		}

		resp, err := c.completeOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, classify(lastErr)
}

func (c *Client) completeOnce(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAPIError(httpResp, body)
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Message: "response has no choices", Retryable: true}
	}
	return &resp, nil
}

func parseAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Retryable:  resp.StatusCode == 429 || resp.StatusCode >= 500,
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
		apiErr.Code = parsed.Error.Code
	}

	if after := resp.Header.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Transport-level failures are worth a retry.
	return true
}

// retryDelay is exponential backoff with jitter, overridden by the
// provider's Retry-After when it gave one.
func retryDelay(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	delay := baseRetryDelay * time.Duration(1<<(attempt-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Up to 25% jitter so concurrent retries spread out.
	return delay + time.Duration(rand.Int63n(int64(delay)/4+1))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var coded *etymerrors.Error
	if errors.As(err, &coded) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return etymerrors.Wrap(err, etymerrors.ErrCodeModelAPI, "model provider error").
			WithRetryable(apiErr.Retryable).
			WithContext("status", apiErr.StatusCode)
	}
	return etymerrors.Wrap(err, etymerrors.ErrCodeModelAPI, "model request failed").WithRetryable(true)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
