// Package transport posts JSON to an ordered list of candidate URLs with
// retry and backoff. One attempt tries every URL in order; the first success
// ends the call, a non-retryable failure ends it immediately, and when every
// URL fails with a retryable error the client backs off and tries again.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// APIKeyHeader carries the public key on every request.
	APIKeyHeader = "x-api-key"

	maxResponseBodySize = 10 << 20
)

// Options control timeouts and retries.
type Options struct {
	// Timeout bounds each individual request.
	Timeout time.Duration
	// MaxRetries is the number of attempts; values below one mean one.
	MaxRetries int
	// RetryBaseDelay is the base of the power backoff.
	RetryBaseDelay time.Duration
}

// Client sends requests. It is safe for concurrent use; each Send keeps its
// own backoff state, so one call sleeping never delays another.
type Client struct {
	http   *http.Client
	opts   Options
	logger *slog.Logger
}

// NewHTTPClient returns the default client, instrumented with OpenTelemetry.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// New returns a Client. A nil httpClient uses NewHTTPClient and a nil
// logger uses slog.Default.
func New(httpClient *http.Client, opts Options, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Client{http: httpClient, opts: opts, logger: logger}
}

// Send POSTs body as JSON to the candidate urls and decodes a non-empty 2xx
// response into out. found is false when the response body was empty. After
// all attempts are exhausted the last observed error is returned.
func (c *Client) Send(ctx context.Context, urls []string, apiKey string, body, out any) (found bool, err error) {
	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrEncode, err)
		}
	}

	if len(urls) == 0 {
		return false, &StatusError{StatusCode: -1}
	}

	attempt := 0
	operation := func() (bool, error) {
		attempt++
		var lastErr error
		for _, u := range urls {
			if err := ctx.Err(); err != nil {
				return false, backoff.Permanent(err)
			}

			c.logger.Debug("attempting request", "url", u, "attempt", attempt)
			found, err := c.sendOnce(ctx, u, apiKey, payload, out)
			if err == nil {
				return found, nil
			}

			c.logger.Debug("request failed", "url", u, "attempt", attempt, "error", err)
			if ctx.Err() != nil || !IsRetryable(err) {
				return false, backoff.Permanent(err)
			}
			lastErr = err
		}
		return false, lastErr
	}

	found, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(NewPowerBackOff(c.opts.RetryBaseDelay)),
		backoff.WithMaxTries(uint(c.opts.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("all candidate urls failed, backing off",
				"attempt", attempt, "delay", next, "error", err)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return false, err
	}
	return found, nil
}

func (c *Client) sendOnce(ctx context.Context, url, apiKey string, payload []byte, out any) (bool, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrBadURL, url, err)
	}
	req.Header.Set(APIKeyHeader, apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if err := validate(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return false, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
	}
	return true, nil
}

func validate(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusInternalServerError:
		return ErrInternalServerError
	default:
		return &StatusError{StatusCode: resp.StatusCode}
	}
}
