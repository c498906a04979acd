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
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/action"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/state"
)

// Applier applies a single membership change. Satisfied by the action
// dispatcher.
type Applier interface {
	Apply(ctx context.Context, req action.Request) (*action.Result, error)
}

// PushResult summarizes one applied push.
type PushResult struct {
	// Tier is the tier the score resolved to.
	Tier string

	// GroupID is the tier's provider group.
	GroupID string

	// Changed reports whether the push moved the user between tiers.
	// False when the score landed in the user's current tier.
	Changed bool
}

// Pusher turns risk-score events into tier group transitions.
type Pusher struct {
	applier Applier
	bands   Bands
	store   *state.Store
	logger  *slog.Logger
}

// NewPusher creates a pusher over a validated band mapping. The store holds
// each user's last-known tier; it is required, since without it every push
// would forget prior transitions.
func NewPusher(applier Applier, bands Bands, store *state.Store, logger *slog.Logger) (*Pusher, error) {
	if err := bands.Validate(); err != nil {
		return nil, fmt.Errorf("invalid band mapping: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pusher{
		applier: applier,
		bands:   bands,
		store:   store,
		logger:  logger,
	}, nil
}

// Push moves the user into the tier group the score resolves to, removing
// them from their previous tier group first. Invariant on success: the user
// belongs to exactly one tier group.
//
// First push for a user issues only the ADD. A score that stays within the
// current tier re-asserts the ADD, which the dispatcher treats as a no-op, so
// a lost earlier membership heals itself. On a half-applied transition Push
// returns a PartialPushError; retrying with the same score converges because
// the completed REMOVE is recorded before the ADD is attempted.
func (p *Pusher) Push(ctx context.Context, userID string, score int) (*PushResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	band, err := p.bands.Resolve(score)
	if err != nil {
		return nil, err
	}

	prevTier, prevGroup, known, err := p.store.GetTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With(
		slog.String("user_id", userID),
		slog.Int("score", score),
		slog.String("tier", band.Tier),
	)

	if known && prevTier == band.Tier {
		// Same tier: re-assert membership, no transition.
		if err := p.add(ctx, userID, band); err != nil {
			return nil, err
		}
		logger.Debug("risk tier unchanged")
		return &PushResult{Tier: band.Tier, GroupID: band.GroupID}, nil
	}

	if known {
		_, err := p.applier.Apply(ctx, action.Request{
			UserID:  userID,
			GroupID: prevGroup,
			Op:      action.OpRemove,
		})
		if err != nil {
			return nil, &PartialPushError{
				UserID:        userID,
				FailedOp:      action.OpRemove,
				FailedGroupID: prevGroup,
				Cause:         err,
			}
		}

		// Record the completed REMOVE before attempting the ADD, so a retry
		// after an ADD failure issues only the outstanding half.
		if err := p.store.DeleteTier(ctx, userID); err != nil {
			return nil, err
		}
	}

	if err := p.add(ctx, userID, band); err != nil {
		return nil, &PartialPushError{
			UserID:        userID,
			FailedOp:      action.OpAdd,
			FailedGroupID: band.GroupID,
			RemoveDone:    known,
			Cause:         err,
		}
	}

	logger.Info("risk tier transition applied",
		slog.String("previous_tier", prevTier),
	)

	return &PushResult{Tier: band.Tier, GroupID: band.GroupID, Changed: true}, nil
}

// add issues the tier ADD and records the new tier once it sticks.
func (p *Pusher) add(ctx context.Context, userID string, band *Band) error {
	_, err := p.applier.Apply(ctx, action.Request{
		UserID:  userID,
		GroupID: band.GroupID,
		Op:      action.OpAdd,
	})
	if err != nil {
		return err
	}
	return p.store.SetTier(ctx, userID, band.Tier, band.GroupID)
}
