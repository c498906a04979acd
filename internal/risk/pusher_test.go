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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/action"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/state"
)

// fakeApplier records applied requests and fails on configured (op, group)
// pairs.
type fakeApplier struct {
	applied []action.Request
	failOn  map[string]error // key: op + "/" + groupID
}

func (f *fakeApplier) Apply(ctx context.Context, req action.Request) (*action.Result, error) {
	if err := f.failOn[string(req.Op)+"/"+req.GroupID]; err != nil {
		return nil, err
	}
	f.applied = append(f.applied, req)
	return &action.Result{Request: req}, nil
}

func (f *fakeApplier) ops() []string {
	out := make([]string, 0, len(f.applied))
	for _, req := range f.applied {
		out = append(out, string(req.Op)+"/"+req.GroupID)
	}
	return out
}

func newTestPusher(t *testing.T) (*Pusher, *fakeApplier, *state.Store) {
	t.Helper()
	store, err := state.NewStore(state.Config{Path: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	applier := &fakeApplier{failOn: map[string]error{}}
	p, err := NewPusher(applier, threeTiers(), store, nil)
	require.NoError(t, err)
	return p, applier, store
}

func TestPush_FirstPushIssuesOnlyAdd(t *testing.T) {
	p, applier, store := newTestPusher(t)
	ctx := context.Background()

	res, err := p.Push(ctx, "u42", 500)
	require.NoError(t, err)
	assert.Equal(t, "medium", res.Tier)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"ADD/grp-med"}, applier.ops())

	tier, groupID, ok, err := store.GetTier(ctx, "u42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "medium", tier)
	assert.Equal(t, "grp-med", groupID)
}

func TestPush_TierTransitionIssuesRemoveThenAdd(t *testing.T) {
	p, applier, store := newTestPusher(t)
	ctx := context.Background()

	_, err := p.Push(ctx, "u42", 500)
	require.NoError(t, err)
	applier.applied = nil

	res, err := p.Push(ctx, "u42", 900)
	require.NoError(t, err)
	assert.Equal(t, "high", res.Tier)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"REMOVE/grp-med", "ADD/grp-high"}, applier.ops())

	tier, _, ok, err := store.GetTier(ctx, "u42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "high", tier)
}

func TestPush_SameTierReassertsAddOnly(t *testing.T) {
	p, applier, _ := newTestPusher(t)
	ctx := context.Background()

	_, err := p.Push(ctx, "u42", 400)
	require.NoError(t, err)
	applier.applied = nil

	res, err := p.Push(ctx, "u42", 600)
	require.NoError(t, err)
	assert.Equal(t, "medium", res.Tier)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{"ADD/grp-med"}, applier.ops(), "no REMOVE within the same tier")
}

func TestPush_AddFailureAfterRemoveReportsPartial(t *testing.T) {
	p, applier, store := newTestPusher(t)
	ctx := context.Background()

	_, err := p.Push(ctx, "u42", 500)
	require.NoError(t, err)

	applier.failOn["ADD/grp-high"] = errors.New("upstream 503")
	applier.applied = nil

	_, err = p.Push(ctx, "u42", 900)
	var partial *PartialPushError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, action.OpAdd, partial.FailedOp)
	assert.Equal(t, "grp-high", partial.FailedGroupID)
	assert.True(t, partial.RemoveDone)
	assert.Equal(t, []string{"REMOVE/grp-med"}, applier.ops())

	// The completed REMOVE was recorded: the tier is now unknown.
	_, _, ok, err := store.GetTier(ctx, "u42")
	require.NoError(t, err)
	assert.False(t, ok)

	// Retry with the same score converges with only the outstanding ADD.
	delete(applier.failOn, "ADD/grp-high")
	applier.applied = nil

	res, err := p.Push(ctx, "u42", 900)
	require.NoError(t, err)
	assert.Equal(t, "high", res.Tier)
	assert.Equal(t, []string{"ADD/grp-high"}, applier.ops(), "REMOVE not re-issued")
}

func TestPush_RemoveFailureLeavesTierRecorded(t *testing.T) {
	p, applier, store := newTestPusher(t)
	ctx := context.Background()

	_, err := p.Push(ctx, "u42", 500)
	require.NoError(t, err)

	applier.failOn["REMOVE/grp-med"] = errors.New("upstream 503")
	applier.applied = nil

	_, err = p.Push(ctx, "u42", 900)
	var partial *PartialPushError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, action.OpRemove, partial.FailedOp)
	assert.Equal(t, "grp-med", partial.FailedGroupID)
	assert.False(t, partial.RemoveDone)
	assert.Empty(t, applier.ops(), "ADD not attempted while REMOVE outstanding")

	tier, _, ok, err := store.GetTier(ctx, "u42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "medium", tier, "failed transition leaves prior tier recorded")
}

func TestPush_ExactlyOneTierGroupAcrossScores(t *testing.T) {
	p, applier, store := newTestPusher(t)
	ctx := context.Background()

	// Walk the user through every tier in sequence; each transition must
	// remove the previous tier group before adding the next.
	scores := []int{100, 500, 1000, 0}
	for _, score := range scores {
		_, err := p.Push(ctx, "u42", score)
		require.NoError(t, err, "score %d", score)
	}

	// Replay the membership effects to confirm exactly one group remains.
	groups := map[string]bool{}
	for _, req := range applier.applied {
		switch req.Op {
		case action.OpAdd:
			groups[req.GroupID] = true
		case action.OpRemove:
			delete(groups, req.GroupID)
		}
	}
	assert.Equal(t, map[string]bool{"grp-low": true}, groups)

	tier, _, ok, err := store.GetTier(ctx, "u42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "low", tier)
}

func TestPush_RejectsUnknownScoreAndUser(t *testing.T) {
	p, _, _ := newTestPusher(t)
	ctx := context.Background()

	_, err := p.Push(ctx, "u42", -5)
	assert.ErrorContains(t, err, "outside domain")

	_, err = p.Push(ctx, "", 500)
	assert.ErrorContains(t, err, "user_id is required")
}

func TestNewPusher_RejectsInvalidBands(t *testing.T) {
	store, err := state.NewStore(state.Config{Path: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer store.Close()

	_, err = NewPusher(&fakeApplier{}, Bands{}, store, nil)
	assert.ErrorContains(t, err, "invalid band mapping")

	_, err = NewPusher(&fakeApplier{}, threeTiers(), nil, nil)
	assert.ErrorContains(t, err, "state store is required")
}
