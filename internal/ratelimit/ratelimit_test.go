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

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"per second", &Config{RequestsPerSecond: 10}, false},
		{"per minute", &Config{RequestsPerMinute: 600}, false},
		{"unlimited", &Config{}, false},
		{"negative rps", &Config{RequestsPerSecond: -1}, true},
		{"negative rpm", &Config{RequestsPerMinute: -60}, true},
		{"negative burst", &Config{RequestsPerSecond: 1, Burst: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_NoRateConfigured(t *testing.T) {
	assert.Nil(t, New(nil))
	assert.Nil(t, New(&Config{}))
}

func TestNew_PerMinuteRate(t *testing.T) {
	b := New(&Config{RequestsPerMinute: 120})
	require.NotNil(t, b)

	// 120/min = 2/s, default burst 2x = 4
	assert.Equal(t, 4, b.limiter.Burst())
}

func TestBucket_NilWaitIsNoop(t *testing.T) {
	var b *Bucket
	assert.NoError(t, b.Wait(context.Background()))
}

func TestBucket_BurstThenBlock(t *testing.T) {
	b := New(&Config{RequestsPerSecond: 5, Burst: 2})
	require.NotNil(t, b)

	ctx := context.Background()

	// Burst capacity admits immediately.
	start := time.Now()
	require.NoError(t, b.Wait(ctx))
	require.NoError(t, b.Wait(ctx))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Third request must wait for a refill (~200ms at 5 rps).
	start = time.Now()
	require.NoError(t, b.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	waits, total := b.Stats()
	assert.GreaterOrEqual(t, waits, int64(1))
	assert.Greater(t, total, time.Duration(0))
}

func TestBucket_WaitCancelled(t *testing.T) {
	b := New(&Config{RequestsPerSecond: 0.1, Burst: 1})
	require.NotNil(t, b)

	// Drain the bucket.
	require.NoError(t, b.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Wait(ctx)
	assert.Error(t, err)
}

func TestBucket_ConcurrentAdmission(t *testing.T) {
	b := New(&Config{RequestsPerSecond: 100, Burst: 10})
	require.NotNil(t, b)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Wait(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
