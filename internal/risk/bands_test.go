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

package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTiers() Bands {
	return Bands{
		{Tier: "low", Min: 0, Max: 333, GroupID: "grp-low"},
		{Tier: "medium", Min: 334, Max: 666, GroupID: "grp-med"},
		{Tier: "high", Min: 667, Max: 1000, GroupID: "grp-high"},
	}
}

func TestBandsValidate(t *testing.T) {
	tests := []struct {
		name    string
		bands   Bands
		wantErr string
	}{
		{
			name:  "valid three tiers",
			bands: threeTiers(),
		},
		{
			name: "valid single band",
			bands: Bands{
				{Tier: "all", Min: 0, Max: 1000, GroupID: "grp"},
			},
		},
		{
			name: "unsorted input accepted",
			bands: Bands{
				{Tier: "high", Min: 667, Max: 1000, GroupID: "grp-high"},
				{Tier: "low", Min: 0, Max: 666, GroupID: "grp-low"},
			},
		},
		{
			name:    "empty",
			bands:   Bands{},
			wantErr: "at least one band",
		},
		{
			name: "gap between bands",
			bands: Bands{
				{Tier: "low", Min: 0, Max: 400, GroupID: "a"},
				{Tier: "high", Min: 402, Max: 1000, GroupID: "b"},
			},
			wantErr: "gap or overlap",
		},
		{
			name: "overlapping bands",
			bands: Bands{
				{Tier: "low", Min: 0, Max: 500, GroupID: "a"},
				{Tier: "high", Min: 500, Max: 1000, GroupID: "b"},
			},
			wantErr: "gap or overlap",
		},
		{
			name: "does not start at domain min",
			bands: Bands{
				{Tier: "high", Min: 100, Max: 1000, GroupID: "a"},
			},
			wantErr: "must start at 0",
		},
		{
			name: "does not reach domain max",
			bands: Bands{
				{Tier: "low", Min: 0, Max: 900, GroupID: "a"},
			},
			wantErr: "must end at 1000",
		},
		{
			name: "duplicate tier name",
			bands: Bands{
				{Tier: "t", Min: 0, Max: 500, GroupID: "a"},
				{Tier: "t", Min: 501, Max: 1000, GroupID: "b"},
			},
			wantErr: "duplicate tier",
		},
		{
			name: "group mapped twice",
			bands: Bands{
				{Tier: "low", Min: 0, Max: 500, GroupID: "a"},
				{Tier: "high", Min: 501, Max: 1000, GroupID: "a"},
			},
			wantErr: "more than one tier",
		},
		{
			name: "inverted bounds",
			bands: Bands{
				{Tier: "low", Min: 500, Max: 0, GroupID: "a"},
			},
			wantErr: "exceeds max",
		},
		{
			name: "missing group",
			bands: Bands{
				{Tier: "low", Min: 0, Max: 1000},
			},
			wantErr: "group_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bands.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestBandsResolve(t *testing.T) {
	bands := threeTiers()

	tests := []struct {
		score    int
		wantTier string
	}{
		{0, "low"},
		{333, "low"},
		{334, "medium"},
		{666, "medium"},
		{667, "high"},
		{1000, "high"},
	}

	for _, tt := range tests {
		band, err := bands.Resolve(tt.score)
		require.NoError(t, err, "score %d", tt.score)
		assert.Equal(t, tt.wantTier, band.Tier, "score %d", tt.score)
	}

	_, err := bands.Resolve(-1)
	assert.ErrorContains(t, err, "outside domain")

	_, err = bands.Resolve(1001)
	assert.ErrorContains(t, err, "outside domain")
}
