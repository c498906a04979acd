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

package action

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

// apiError fabricates the transport error a provider 4xx with a structured
// body produces.
func apiError(status int, code string) error {
	return &transport.Error{
		Type:       transport.ErrorTypeValidation,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d", status),
		Metadata: map[string]string{
			transport.MetadataBody: fmt.Sprintf(`{"code": %q}`, code),
		},
	}
}

func bare404() error {
	return &transport.Error{
		Type:       transport.ErrorTypeNotFound,
		StatusCode: http.StatusNotFound,
		Message:    "HTTP 404",
	}
}

// fakeMembership simulates the provider's membership surface. members maps
// "groupID/userID" to presence; groups is the set of known groups.
type fakeMembership struct {
	mu      sync.Mutex
	members map[string]bool
	groups  map[string]bool

	addErr    error
	removeErr error
	probes    atomic.Int32
}

func newFakeMembership(groups ...string) *fakeMembership {
	f := &fakeMembership{
		members: make(map[string]bool),
		groups:  make(map[string]bool),
	}
	for _, g := range groups {
		f.groups[g] = true
	}
	return f
}

func (f *fakeMembership) key(userID, groupID string) string { return groupID + "/" + userID }

func (f *fakeMembership) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if f.members[f.key(userID, groupID)] {
		return apiError(http.StatusConflict, provider.CodeMembershipExists)
	}
	f.members[f.key(userID, groupID)] = true
	return nil
}

func (f *fakeMembership) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	if !f.members[f.key(userID, groupID)] {
		return apiError(http.StatusNotFound, provider.CodeMembershipNotFound)
	}
	delete(f.members, f.key(userID, groupID))
	return nil
}

func (f *fakeMembership) GetGroup(ctx context.Context, groupID string) (*provider.GroupRef, error) {
	f.probes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.groups[groupID] {
		return nil, bare404()
	}
	return &provider.GroupRef{ID: groupID}, nil
}

func TestApply_AddThenDuplicateAddIsNoOp(t *testing.T) {
	fake := newFakeMembership("g1")
	d := NewDispatcher(fake, 0, nil)
	ctx := context.Background()

	res, err := d.Apply(ctx, Request{UserID: "u1", GroupID: "g1", Op: OpAdd})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.NotEmpty(t, res.Request.IdempotencyKey)

	res, err = d.Apply(ctx, Request{UserID: "u1", GroupID: "g1", Op: OpAdd})
	require.NoError(t, err)
	assert.True(t, res.NoOp, "second add of same membership is a no-op")
}

func TestApply_RemoveMissingMembershipIsNoOp(t *testing.T) {
	fake := newFakeMembership("g1")
	d := NewDispatcher(fake, 0, nil)

	res, err := d.Apply(context.Background(), Request{UserID: "u1", GroupID: "g1", Op: OpRemove})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
}

func TestApply_StructuredNotFoundCodes(t *testing.T) {
	ctx := context.Background()

	fake := newFakeMembership("g1")
	fake.addErr = apiError(http.StatusNotFound, provider.CodeUserNotFound)
	d := NewDispatcher(fake, 0, nil)

	_, err := d.Apply(ctx, Request{UserID: "ghost", GroupID: "g1", Op: OpAdd})
	var userErr *UserNotFoundError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "ghost", userErr.UserID)

	fake.addErr = apiError(http.StatusNotFound, provider.CodeGroupNotFound)
	_, err = d.Apply(ctx, Request{UserID: "u1", GroupID: "gone", Op: OpAdd})
	var groupErr *GroupNotFoundError
	require.ErrorAs(t, err, &groupErr)
	assert.Equal(t, "gone", groupErr.GroupID)
	assert.Equal(t, int32(0), fake.probes.Load(), "structured codes need no probe")
}

func TestApply_Ambiguous404AttributedByProbe(t *testing.T) {
	ctx := context.Background()

	// Group exists: the 404 must have been the user.
	fake := newFakeMembership("g1")
	fake.addErr = bare404()
	d := NewDispatcher(fake, 0, nil)

	_, err := d.Apply(ctx, Request{UserID: "ghost", GroupID: "g1", Op: OpAdd})
	var userErr *UserNotFoundError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, int32(1), fake.probes.Load())

	// Group missing: the 404 was the group.
	fake = newFakeMembership()
	fake.addErr = bare404()
	d = NewDispatcher(fake, 0, nil)

	_, err = d.Apply(ctx, Request{UserID: "u1", GroupID: "gone", Op: OpAdd})
	var groupErr *GroupNotFoundError
	require.ErrorAs(t, err, &groupErr)
}

func TestApply_OtherFailuresWrapActionFailed(t *testing.T) {
	fake := newFakeMembership("g1")
	fake.addErr = &transport.Error{
		Type:       transport.ErrorTypeServer,
		StatusCode: http.StatusBadGateway,
		Message:    "HTTP 502",
		Retryable:  true,
	}
	d := NewDispatcher(fake, 0, nil)

	_, err := d.Apply(context.Background(), Request{UserID: "u1", GroupID: "g1", Op: OpAdd})
	var actionErr *ActionFailedError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, OpAdd, actionErr.Op)
	assert.True(t, transport.IsType(actionErr.Cause, transport.ErrorTypeServer))
}

func TestApply_ValidatesRequest(t *testing.T) {
	d := NewDispatcher(newFakeMembership(), 0, nil)
	ctx := context.Background()

	_, err := d.Apply(ctx, Request{GroupID: "g1", Op: OpAdd})
	assert.ErrorContains(t, err, "user_id is required")

	_, err = d.Apply(ctx, Request{UserID: "u1", Op: OpAdd})
	assert.ErrorContains(t, err, "group_id is required")

	_, err = d.Apply(ctx, Request{UserID: "u1", GroupID: "g1", Op: "TOGGLE"})
	assert.ErrorContains(t, err, "op must be")
}

func TestApplyAll_AppliesEveryRequest(t *testing.T) {
	fake := newFakeMembership("g1", "g2")
	d := NewDispatcher(fake, 2, nil)

	reqs := []Request{
		{UserID: "u1", GroupID: "g1", Op: OpAdd},
		{UserID: "u2", GroupID: "g1", Op: OpAdd},
		{UserID: "u3", GroupID: "g2", Op: OpAdd},
	}

	results, err := d.ApplyAll(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, reqs[i].UserID, res.Request.UserID)
		assert.NoError(t, res.Err)
	}

	assert.True(t, fake.members["g1/u1"])
	assert.True(t, fake.members["g1/u2"])
	assert.True(t, fake.members["g2/u3"])
}

func TestApplyAll_PartialFailureStillRunsRest(t *testing.T) {
	fake := newFakeMembership("g1")
	d := NewDispatcher(fake, 1, nil)

	reqs := []Request{
		{UserID: "u1", GroupID: "g1", Op: OpAdd},
		{UserID: "u2", GroupID: "g1", Op: "BOGUS"},
		{UserID: "u3", GroupID: "g1", Op: OpAdd},
	}

	results, err := d.ApplyAll(context.Background(), reqs)
	require.Error(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.True(t, fake.members["g1/u3"], "later requests still applied")
}
