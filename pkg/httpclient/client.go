// Package httpclient is the outbound HTTP transport for API consumers:
// pooled connections, bounded retries for idempotent calls, an optional
// circuit breaker and translation of error envelopes into AppErrors.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Doer sends a request. Client and CircuitBreakerClient both satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout time.Duration

	// MaxRetries bounds extra attempts for idempotent requests. Zero sends
	// every request exactly once.
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	MaxConnsPerHost int

	// Jar carries cookies between requests, such as the refresh cookie.
	Jar http.CookieJar
}

// DefaultConfig returns the settings used by the session agent.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 32,
	}
}

// Client is an http.Client with a retry policy.
type Client struct {
	http  *http.Client
	retry Config
}

// New builds a Client with its own transport.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			Jar:       cfg.Jar,
		},
		retry: cfg,
	}
}

// Do sends req. Idempotent requests with a replayable body are retried on
// network errors and on 502, 503 and 504. Everything else, including login
// and refresh POSTs, goes out once.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	attempts := 1
	if idempotent(req) {
		attempts += c.retry.MaxRetries
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.http.Do(req)
		last := attempt >= attempts

		switch {
		case err != nil && (last || !transient(ctx, err)):
			return nil, fmt.Errorf("%s %s (attempt %d): %w", req.Method, req.URL.Path, attempt, err)
		case err == nil && (last || !retryStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		if err := c.pause(ctx, attempt); err != nil {
			return nil, err
		}
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}
	}
}

// pause waits out the backoff after the given failed attempt.
func (c *Client) pause(ctx context.Context, attempt int) error {
	t := time.NewTimer(backoff(c.retry.RetryWaitMin, c.retry.RetryWaitMax, attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func idempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	default:
		return false
	}
}

func retryStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// transient reports whether err is a network failure worth another attempt.
// A request abandoned by its caller is not.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoff doubles min per attempt up to max, then picks a point in the upper
// half of that window.
func backoff(minWait, maxWait time.Duration, attempt int) time.Duration {
	d := minWait << (attempt - 1)
	if d > maxWait || d <= 0 {
		d = maxWait
	}
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}
