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

// Package ratelimit provides token-bucket admission control for provider API
// calls. One Bucket is shared by every caller holding the same connection, so
// concurrent sync pages and action dispatches draw from a single budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the admission bucket.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Takes precedence over
	// RequestsPerMinute when both are set.
	RequestsPerSecond float64

	// RequestsPerMinute is an alternative way to express the sustained rate.
	RequestsPerMinute int

	// Burst is the bucket capacity. Default: 2 seconds worth of requests,
	// minimum 1.
	Burst int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative, got %f", c.RequestsPerSecond)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be non-negative, got %d", c.RequestsPerMinute)
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must be non-negative, got %d", c.Burst)
	}
	return nil
}

// rps resolves the configured sustained rate in requests per second.
func (c *Config) rps() float64 {
	if c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	if c.RequestsPerMinute > 0 {
		return float64(c.RequestsPerMinute) / 60.0
	}
	return 0
}

// Bucket is a token-bucket rate limiter safe for concurrent use.
// A nil Bucket performs no admission control.
type Bucket struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	waits     int64
	waitTotal time.Duration
}

// New creates a Bucket from configuration. Returns nil (no rate limiting)
// when no rate is configured.
func New(cfg *Config) *Bucket {
	if cfg == nil {
		return nil
	}
	rps := cfg.rps()
	if rps <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst == 0 {
		burst = int(rps * 2)
	}
	if burst < 1 {
		burst = 1
	}

	return &Bucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
// Every provider API call passes through here before dispatch, so concurrent
// callers serialize admission but not response handling.
func (b *Bucket) Wait(ctx context.Context) error {
	if b == nil {
		return nil
	}

	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit admission cancelled: %w", err)
	}

	if waited := time.Since(start); waited > 0 {
		b.mu.Lock()
		b.waits++
		b.waitTotal += waited
		b.mu.Unlock()
	}
	return nil
}

// Stats returns the number of waits and the cumulative wait duration.
func (b *Bucket) Stats() (waits int64, total time.Duration) {
	if b == nil {
		return 0, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waits, b.waitTotal
}
