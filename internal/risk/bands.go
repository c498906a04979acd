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

// Package risk maps externally computed risk scores onto provider group
// memberships.
//
// A band configuration discretizes the score domain into named tiers, each
// backed by one provider group. Pushing a score moves the user between tier
// groups so that at any time the user belongs to exactly one.
package risk

import (
	"fmt"
	"sort"
)

// Score domain bounds. Provider risk scores are reported on a 0-1000 scale.
const (
	ScoreMin = 0
	ScoreMax = 1000
)

// Band maps one contiguous score range to a provider tier group. Bounds are
// inclusive.
type Band struct {
	// Tier is the band's name, e.g. "low", "medium", "high".
	Tier string `yaml:"tier" json:"tier"`

	// Min is the lowest score in the band (inclusive).
	Min int `yaml:"min" json:"min"`

	// Max is the highest score in the band (inclusive).
	Max int `yaml:"max" json:"max"`

	// GroupID is the provider group representing this tier.
	GroupID string `yaml:"group_id" json:"group_id"`
}

// Bands is a complete tier mapping over the score domain.
type Bands []Band

// Validate checks that the bands partition [ScoreMin, ScoreMax] with no gaps
// or overlaps, and that tiers and groups are distinct.
func (b Bands) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("at least one band is required")
	}

	sorted := make(Bands, len(b))
	copy(sorted, b)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	tiers := make(map[string]bool, len(sorted))
	groups := make(map[string]bool, len(sorted))

	for i, band := range sorted {
		if band.Tier == "" {
			return fmt.Errorf("band %d: tier name is required", i)
		}
		if band.GroupID == "" {
			return fmt.Errorf("band %q: group_id is required", band.Tier)
		}
		if band.Min > band.Max {
			return fmt.Errorf("band %q: min %d exceeds max %d", band.Tier, band.Min, band.Max)
		}
		if tiers[band.Tier] {
			return fmt.Errorf("duplicate tier %q", band.Tier)
		}
		if groups[band.GroupID] {
			return fmt.Errorf("group %q mapped to more than one tier", band.GroupID)
		}
		tiers[band.Tier] = true
		groups[band.GroupID] = true

		switch {
		case i == 0 && band.Min != ScoreMin:
			return fmt.Errorf("bands must start at %d, first band %q starts at %d", ScoreMin, band.Tier, band.Min)
		case i > 0 && band.Min != sorted[i-1].Max+1:
			return fmt.Errorf("gap or overlap between bands %q and %q", sorted[i-1].Tier, band.Tier)
		}
	}

	if last := sorted[len(sorted)-1]; last.Max != ScoreMax {
		return fmt.Errorf("bands must end at %d, last band %q ends at %d", ScoreMax, last.Tier, last.Max)
	}

	return nil
}

// Resolve returns the band containing score. Fails for scores outside the
// domain; within the domain a validated mapping always resolves.
func (b Bands) Resolve(score int) (*Band, error) {
	if score < ScoreMin || score > ScoreMax {
		return nil, fmt.Errorf("score %d outside domain [%d, %d]", score, ScoreMin, ScoreMax)
	}
	for i := range b {
		if score >= b[i].Min && score <= b[i].Max {
			return &b[i], nil
		}
	}
	return nil, fmt.Errorf("no band covers score %d", score)
}
