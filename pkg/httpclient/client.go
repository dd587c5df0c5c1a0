// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides an HTTP client with bounded retries for
// provider API calls.
//
// Transient failures (network errors, timeouts, 5xx, 429) are retried with
// exponential backoff and jitter; other 4xx responses are returned
// immediately. The retry budget is small: embedding pipelines would rather
// fail loudly than mask a misbehaving backend.
package httpclient

import (
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// DefaultMaxRetries bounds retry attempts after the initial request.
const DefaultMaxRetries = 3

type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// WithTimeout sets the per-request timeout on the underlying client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: DefaultMaxRetries,
		baseDelay:  500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// retryable reports whether a response status warrants another attempt.
func retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Do executes the request, retrying transient failures up to the budget.
// The request must have GetBody set when it carries a body (requests built
// with http.NewRequestWithContext and a bytes.Reader do).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if lastResp != nil {
				lastResp.Body.Close()
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, &RetryableError{
						Message: "failed to recreate request body for retry",
						Err:     err,
					}
				}
				req.Body = body
			}

			delay := c.backoff(attempt)
			slog.Debug("Retrying HTTP request",
				"url", req.URL.String(), "attempt", attempt, "delay", delay)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network error or timeout: retry unless the context is gone.
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastResp, lastErr = nil, err
			continue
		}

		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		lastResp, lastErr = resp, nil
	}

	if lastResp != nil {
		return lastResp, &RetryableError{
			StatusCode: lastResp.StatusCode,
			Message:    "retry budget exhausted",
		}
	}
	return nil, &RetryableError{
		Message: "retry budget exhausted",
		Err:     lastErr,
	}
}

// backoff returns the delay before the given attempt (1-based), exponential
// with 10% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
