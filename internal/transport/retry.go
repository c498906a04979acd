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

package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig configures retry behavior for transport operations.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first (default: 4)
	MaxAttempts int

	// InitialBackoff is the initial backoff duration (default: 1s)
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 30s)
	MaxBackoff time.Duration

	// BackoffFactor is the exponential backoff multiplier (default: 2.0)
	BackoffFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Validate checks if the retry configuration is valid.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %f", c.BackoffFactor)
	}
	return nil
}

// ExecuteFunc is a function that executes a single request attempt.
type ExecuteFunc func(ctx context.Context) (*Response, error)

// Execute runs the given function with retry logic.
//
// Retry behavior:
//   - Retries 429 and 5xx responses and transient connection/timeout errors
//   - Does NOT retry auth, not-found, or validation errors
//   - 429 responses with a Retry-After header wait exactly that long
//   - Stops immediately on context cancellation
func Execute(ctx context.Context, config *RetryConfig, fn ExecuteFunc) (*Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		shouldRetry, retryAfter := shouldRetryError(err)
		if attempt >= config.MaxAttempts || !shouldRetry {
			return nil, lastErr
		}

		if ctx.Err() != nil {
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "request cancelled before retry",
				Retryable: false,
				Cause:     ctx.Err(),
			}
		}

		delay := calculateBackoff(config, attempt, retryAfter)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &Error{
				Type:      ErrorTypeCancelled,
				Message:   "request cancelled during retry backoff",
				Retryable: false,
				Cause:     ctx.Err(),
			}
		}
	}

	return nil, lastErr
}

// shouldRetryError determines if an error should be retried and extracts
// the Retry-After delay if present.
func shouldRetryError(err error) (shouldRetry bool, retryAfter time.Duration) {
	te, ok := err.(*Error)
	if !ok {
		// Unknown error type - don't retry
		return false, 0
	}

	if !te.Retryable {
		return false, 0
	}

	if te.StatusCode == http.StatusTooManyRequests || te.StatusCode == http.StatusServiceUnavailable {
		retryAfter = extractRetryAfter(te)
	}

	return true, retryAfter
}

// calculateBackoff calculates the backoff delay for a retry attempt.
//
// Formula: delay = min(InitialBackoff * (BackoffFactor ^ (attempt - 1)), MaxBackoff) + jitter
// Jitter: random [0ms, 100ms]. A Retry-After delay is honored verbatim, even
// beyond MaxBackoff, since the provider told us exactly when to come back.
func calculateBackoff(config *RetryConfig, attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	baseDelay := float64(config.InitialBackoff) * pow(config.BackoffFactor, attempt-1)
	if baseDelay > float64(config.MaxBackoff) {
		baseDelay = float64(config.MaxBackoff)
	}

	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond

	return time.Duration(baseDelay) + jitter
}

// extractRetryAfter extracts the Retry-After value from error metadata.
// Returns 0 if not present or invalid.
//
// Supports two formats:
//   - Numeric: seconds to wait (e.g., "120")
//   - HTTP-date: absolute time (e.g., "Wed, 21 Oct 2015 07:28:00 GMT")
func extractRetryAfter(err *Error) time.Duration {
	if err.Metadata == nil {
		return 0
	}

	retryAfterStr, ok := err.Metadata[metadataRetryAfter]
	if !ok || retryAfterStr == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(retryAfterStr, 10, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	retryTime, parseErr := http.ParseTime(retryAfterStr)
	if parseErr != nil {
		// Malformed Retry-After - ignore and use calculated backoff
		return 0
	}

	delay := time.Until(retryTime)
	if delay < 0 {
		// Retry-After is in the past - retry immediately
		return 0
	}

	return delay
}

// pow calculates base^exp for integer exponents.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
