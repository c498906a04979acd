// Copyright 2025 Tom Barlow
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

// Package transport provides authenticated, rate-limited HTTP access to the
// identity provider's REST API.
//
// All calls pass through a shared admission bucket before dispatch and are
// retried on transient failures (429 honoring Retry-After, 5xx with capped
// exponential backoff). Non-retryable 4xx responses surface immediately as
// typed errors: auth for 401/403, not_found for 404, validation otherwise.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	metadataRetryAfter = "retry_after"

	// MetadataBody carries the (capped) error response body so callers can
	// parse provider-specific error codes.
	MetadataBody = "body"
)

// maxErrorBodyBytes caps how much of a provider error body is copied into an
// error message.
const maxErrorBodyBytes = 500

// Config configures the transport client.
type Config struct {
	// BaseURL is the provider's base URL (required, must include scheme and host)
	BaseURL string

	// APIToken is the bearer credential (required). Treated as a secret:
	// it appears only in the Authorization header, never in logs or errors.
	APIToken string

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// UserAgent identifies the connector on every request
	UserAgent string

	// Retry configures retry behavior (optional, uses defaults if nil)
	Retry *RetryConfig

	// TLSInsecure disables TLS certificate validation (default: false).
	// Only for development against test tenants.
	TLSInsecure bool
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("base_url must include scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base_url must include host")
	}

	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}

	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// Response represents a provider API response.
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Headers contains response headers
	Headers http.Header

	// Body is the response body
	Body []byte
}

// RateLimiter admits requests under a shared budget.
// Implementations block until a request is allowed.
type RateLimiter interface {
	// Wait blocks until a request is allowed under the rate limit.
	// Returns an error if the context is cancelled before the request can proceed.
	Wait(ctx context.Context) error
}

// Client is the authenticated HTTP client for the provider API.
// Safe for concurrent use; all callers share one admission bucket.
type Client struct {
	config  *Config
	client  *http.Client
	limiter RateLimiter
	logger  *slog.Logger
}

// NewClient creates a transport client with the given configuration.
// limiter may be nil to disable admission control; logger may be nil to
// disable request logging.
func NewClient(config *Config, limiter RateLimiter, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,

			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: config.TLSInsecure,
			},
		},
	}

	return &Client{
		config:  config,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Do sends an authenticated request to the provider and returns the response.
// path is resolved against the configured base URL. Retries transient failures
// per the retry configuration; every attempt passes the admission bucket.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	if err := validateMethod(method); err != nil {
		return nil, &Error{
			Type:      ErrorTypeInvalidReq,
			Message:   err.Error(),
			Retryable: false,
			Cause:     err,
		}
	}

	reqURL, err := c.buildURL(path, query)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeInvalidReq,
			Message:   fmt.Sprintf("invalid request path %q", path),
			Retryable: false,
			Cause:     err,
		}
	}

	c.logger.Debug("provider API request",
		slog.String("method", method),
		slog.String("path", path),
	)

	return Execute(ctx, c.config.Retry, func(ctx context.Context) (*Response, error) {
		return c.doOnce(ctx, method, reqURL, body)
	})
}

// doOnce executes a single attempt without retry logic.
func (c *Client) doOnce(ctx context.Context, method, reqURL string, body []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "rate limit wait cancelled",
				Retryable: false,
				Cause:     err,
			}
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeInvalidReq,
			Message:   "failed to build HTTP request",
			Retryable: false,
			Cause:     err,
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeConnection,
			Message:   "failed to read response body",
			Retryable: true,
			Cause:     err,
		}
	}

	c.logger.Debug("provider API response",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode >= 400 {
		return nil, classifyStatusError(resp.StatusCode, respBody, resp.Header)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// buildURL resolves path and query against the base URL.
func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base := strings.TrimRight(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// validateMethod checks the HTTP method.
func validateMethod(method string) error {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return nil
	case "":
		return fmt.Errorf("method is required")
	default:
		return fmt.Errorf("invalid HTTP method: %q", method)
	}
}

// classifyRequestError classifies http.Client errors into transport error types.
func classifyRequestError(err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      ErrorTypeCancelled,
			Message:   "request cancelled",
			Retryable: false,
			Cause:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Type:      ErrorTypeTimeout,
			Message:   "request timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	// Everything else is treated as a transient connection failure.
	return &Error{
		Type:      ErrorTypeConnection,
		Message:   "connection error",
		Retryable: true,
		Cause:     err,
	}
}

// classifyStatusError classifies HTTP status code errors.
func classifyStatusError(statusCode int, body []byte, headers http.Header) *Error {
	var errorType ErrorType
	var retryable bool

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errorType = ErrorTypeAuth
		retryable = false
	case statusCode == http.StatusNotFound:
		errorType = ErrorTypeNotFound
		retryable = false
	case statusCode == http.StatusTooManyRequests:
		errorType = ErrorTypeRateLimit
		retryable = true
	case statusCode >= 500:
		errorType = ErrorTypeServer
		retryable = true
	case statusCode == http.StatusRequestTimeout:
		errorType = ErrorTypeTimeout
		retryable = true
	default:
		errorType = ErrorTypeValidation
		retryable = false
	}

	message := fmt.Sprintf("HTTP %d", statusCode)
	if len(body) > 0 && len(body) < maxErrorBodyBytes {
		message = fmt.Sprintf("HTTP %d: %s", statusCode, strings.TrimSpace(string(body)))
	}

	terr := &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
		Metadata:   map[string]string{},
	}

	if len(body) > 0 {
		capped := body
		if len(capped) > maxErrorBodyBytes {
			capped = capped[:maxErrorBodyBytes]
		}
		terr.Metadata[MetadataBody] = string(capped)
	}
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		terr.Metadata[metadataRetryAfter] = retryAfter
	}

	return terr
}
