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

// Package action applies group membership changes against the provider.
//
// Every action is idempotent from the caller's view: adding a user who is
// already a member, or removing one who is not, succeeds as a no-op. The
// host framework retries freely on timeouts without risk of double effect.
package action

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/log"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/transport"
)

// Op is a membership operation.
type Op string

// Membership operations.
const (
	OpAdd    Op = "ADD"
	OpRemove Op = "REMOVE"
)

// DefaultMaxConcurrent bounds parallel membership calls in ApplyAll.
const DefaultMaxConcurrent = 4

// Request is one membership change to apply.
type Request struct {
	// UserID is the provider user ID (required).
	UserID string

	// GroupID is the provider group ID (required).
	GroupID string

	// Op is the membership operation (required).
	Op Op

	// IdempotencyKey correlates retries of the same logical action in logs.
	// Generated if empty.
	IdempotencyKey string
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if r.Op != OpAdd && r.Op != OpRemove {
		return fmt.Errorf("op must be %s or %s, got %q", OpAdd, OpRemove, r.Op)
	}
	return nil
}

// Result records the outcome of one applied request.
type Result struct {
	Request Request

	// NoOp reports that the provider state already matched the request.
	NoOp bool

	// Err is the failure for this request, nil on success.
	Err error
}

// Membership is the provider surface the dispatcher needs.
type Membership interface {
	AddUserToGroup(ctx context.Context, userID, groupID string) error
	RemoveUserFromGroup(ctx context.Context, userID, groupID string) error
	GetGroup(ctx context.Context, groupID string) (*provider.GroupRef, error)
}

// Dispatcher applies membership changes.
type Dispatcher struct {
	provider      Membership
	maxConcurrent int
	logger        *slog.Logger
}

// NewDispatcher creates a dispatcher. maxConcurrent bounds parallelism in
// ApplyAll; zero or negative selects DefaultMaxConcurrent.
func NewDispatcher(p Membership, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		provider:      p,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Apply executes one membership change. Duplicate changes succeed as no-ops;
// a missing user or group surfaces as UserNotFoundError or GroupNotFoundError;
// anything else wraps into ActionFailedError.
func (d *Dispatcher) Apply(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid action request: %w", err)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	logger := d.logger.With(
		slog.String(log.OperationKey, string(req.Op)),
		slog.String(log.UserIDKey, req.UserID),
		slog.String(log.GroupIDKey, req.GroupID),
		slog.String("idempotency_key", req.IdempotencyKey),
	)

	var err error
	switch req.Op {
	case OpAdd:
		err = d.provider.AddUserToGroup(ctx, req.UserID, req.GroupID)
	case OpRemove:
		err = d.provider.RemoveUserFromGroup(ctx, req.UserID, req.GroupID)
	}

	if err == nil {
		logger.Info("membership change applied")
		return &Result{Request: req}, nil
	}

	if isDuplicate(req.Op, err) {
		logger.Info("membership already in desired state")
		return &Result{Request: req, NoOp: true}, nil
	}

	outcome := d.classify(ctx, req, err)
	logger.Warn("membership change failed", log.Error(outcome))
	return &Result{Request: req, Err: outcome}, outcome
}

// ApplyAll applies requests with bounded concurrency and returns one result
// per request, in request order. The returned error is the first failure;
// other requests still run to completion.
func (d *Dispatcher) ApplyAll(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))

	g := &errgroup.Group{}
	g.SetLimit(d.maxConcurrent)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := d.Apply(ctx, req)
			if err != nil {
				results[i] = Result{Request: req, Err: err}
				return err
			}
			results[i] = *res
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// isDuplicate reports whether err is the provider rejecting a change that is
// already in effect.
func isDuplicate(op Op, err error) bool {
	apiErr := provider.ParseAPIError(err)
	if apiErr == nil {
		return false
	}
	switch op {
	case OpAdd:
		return apiErr.Code == provider.CodeMembershipExists
	case OpRemove:
		return apiErr.Code == provider.CodeMembershipNotFound
	}
	return false
}

// classify turns a provider failure into the dispatcher's error taxonomy.
// A 404 without a structured code is ambiguous between user and group, so it
// is attributed by probing the group.
func (d *Dispatcher) classify(ctx context.Context, req Request, err error) error {
	if apiErr := provider.ParseAPIError(err); apiErr != nil {
		switch apiErr.Code {
		case provider.CodeUserNotFound:
			return &UserNotFoundError{UserID: req.UserID}
		case provider.CodeGroupNotFound:
			return &GroupNotFoundError{GroupID: req.GroupID}
		}
	}

	if transport.IsNotFound(err) {
		if _, probeErr := d.provider.GetGroup(ctx, req.GroupID); transport.IsNotFound(probeErr) {
			return &GroupNotFoundError{GroupID: req.GroupID}
		}
		return &UserNotFoundError{UserID: req.UserID}
	}

	return &ActionFailedError{
		Op:      req.Op,
		UserID:  req.UserID,
		GroupID: req.GroupID,
		Cause:   err,
	}
}
